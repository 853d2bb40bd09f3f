package openai

import (
	"encoding/json"
	"strings"

	openaiapi "github.com/tjfontaine/polyglot-chat/internal/api/openai"
	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// toAPIRequest converts an endpoint request into a chat completion request.
// defaults are the model's configured parameters; per-request settings win.
func toAPIRequest(model string, defaults domain.GenerateSettings, req *domain.EndpointRequest) *openaiapi.ChatCompletionRequest {
	apiReq := &openaiapi.ChatCompletionRequest{
		Model:    model,
		Messages: toAPIMessages(req),
	}

	settings := mergeSettings(defaults, req.GenerateSettings)
	if settings.MaxNewTokens > 0 {
		apiReq.MaxTokens = settings.MaxNewTokens
	}
	apiReq.Temperature = settings.Temperature
	apiReq.TopP = settings.TopP
	if len(settings.Stop) > 0 {
		apiReq.Stop = settings.Stop
	}

	if len(req.Tools) > 0 {
		apiReq.Tools = make([]openaiapi.Tool, len(req.Tools))
		for i, t := range req.Tools {
			apiReq.Tools[i] = openaiapi.Tool{
				Type: "function",
				Function: openaiapi.FunctionTool{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
	}

	return apiReq
}

func mergeSettings(defaults domain.GenerateSettings, override *domain.GenerateSettings) domain.GenerateSettings {
	s := defaults
	if override == nil {
		return s
	}
	if override.MaxNewTokens > 0 {
		s.MaxNewTokens = override.MaxNewTokens
	}
	if override.Temperature != nil {
		s.Temperature = override.Temperature
	}
	if override.TopP != nil {
		s.TopP = override.TopP
	}
	if len(override.Stop) > 0 {
		s.Stop = override.Stop
	}
	return s
}

func toAPIMessages(req *domain.EndpointRequest) []openaiapi.ChatCompletionMessage {
	messages := make([]openaiapi.ChatCompletionMessage, 0, len(req.Messages)+1+2*len(req.ToolResults))

	// The preprompt replaces a leading system message rather than stacking a
	// second one in front of it.
	msgs := req.Messages
	if req.Preprompt != "" {
		messages = append(messages, openaiapi.ChatCompletionMessage{Role: "system", Content: req.Preprompt})
		if len(msgs) > 0 && msgs[0].From == "system" {
			msgs = msgs[1:]
		}
	}

	for _, m := range msgs {
		messages = append(messages, openaiapi.ChatCompletionMessage{
			Role:    m.From,
			Content: toAPIContent(m, req.IsMultimodal),
		})
	}

	if len(req.ToolResults) > 0 {
		calls := make([]openaiapi.ToolCall, len(req.ToolResults))
		for i, r := range req.ToolResults {
			args, _ := json.Marshal(r.Call.Parameters)
			calls[i] = openaiapi.ToolCall{
				ID:   r.Call.ID,
				Type: "function",
				Function: openaiapi.FunctionCall{
					Name:      r.Call.Name,
					Arguments: string(args),
				},
			}
		}
		messages = append(messages, openaiapi.ChatCompletionMessage{Role: "assistant", ToolCalls: calls})

		for _, r := range req.ToolResults {
			messages = append(messages, openaiapi.ChatCompletionMessage{
				Role:       "tool",
				ToolCallID: r.Call.ID,
				Content:    toolResultContent(r),
			})
		}
	}

	return messages
}

func toAPIContent(m domain.EndpointMessage, multimodal bool) any {
	if !multimodal || len(m.Files) == 0 {
		return m.Content
	}

	parts := []openaiapi.ContentPart{{Type: "text", Text: m.Content}}
	for _, f := range m.Files {
		if f.Type != "base64" || !strings.HasPrefix(f.Mime, "image/") {
			continue
		}
		parts = append(parts, openaiapi.ContentPart{
			Type:     "image_url",
			ImageURL: &openaiapi.ImageURL{URL: "data:" + f.Mime + ";base64," + f.Value},
		})
	}
	return parts
}

func toolResultContent(r domain.ToolResult) string {
	if r.Status == "error" {
		return "Error: " + r.Message
	}
	b, err := json.Marshal(r.Outputs)
	if err != nil {
		return r.Message
	}
	return string(b)
}
