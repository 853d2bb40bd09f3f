package openai

import (
	"context"
	"encoding/json"
	"strings"

	openaiapi "github.com/tjfontaine/polyglot-chat/internal/api/openai"
	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// toolCallAccumulator collects the argument fragments of one streamed tool call.
type toolCallAccumulator struct {
	id        string
	name      string
	arguments strings.Builder
}

// finalize parses the accumulated arguments into a ToolCall.
func (a *toolCallAccumulator) finalize() (domain.ToolCall, error) {
	// Some upstreams emit pretty-printed argument JSON split across chunks;
	// bare newlines between fragments are not significant.
	raw := strings.ReplaceAll(a.arguments.String(), "\n", "")

	params := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return domain.ToolCall{}, domain.NewGenerationError(domain.ErrToolArgumentParse,
				"tool "+a.name+" ("+a.id+")", err)
		}
		if params == nil {
			params = map[string]any{}
		}
	}

	return domain.ToolCall{ID: a.id, Name: a.name, Parameters: params}, nil
}

// normalizer turns OpenAI chat completion chunks into RawTokenEvents.
// It is single-use and not safe for concurrent use.
type normalizer struct {
	tokenID   int
	generated strings.Builder

	calls  []*toolCallAccumulator
	byID   map[string]*toolCallAccumulator
	latest *toolCallAccumulator

	usage        *domain.UsageInfo
	pendingUsage *domain.UsageInfo
}

func newNormalizer() *normalizer {
	return &normalizer{byID: make(map[string]*toolCallAccumulator)}
}

// handle processes one chunk and returns the events it produces.
func (n *normalizer) handle(chunk *openaiapi.ChatCompletionChunk) ([]domain.RawTokenEvent, error) {
	var events []domain.RawTokenEvent

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]

		if content := choice.Delta.Content; content != "" {
			n.generated.WriteString(content)
			events = append(events, n.event(domain.RawTokenEvent{
				Token: domain.Token{ID: n.nextID(), Text: content},
			}))
		}

		for _, tc := range choice.Delta.ToolCalls {
			if err := n.accumulate(tc); err != nil {
				return events, err
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason == openaiapi.FinishReasonToolCalls {
			ev, err := n.flushToolCalls()
			if err != nil {
				return events, err
			}
			if ev != nil {
				events = append(events, *ev)
			}
		}
	}

	if chunk.Usage != nil {
		n.usage = toUsageInfo(chunk.Usage)
		n.pendingUsage = n.usage
	}

	return events, nil
}

func (n *normalizer) accumulate(tc openaiapi.ToolCallChunk) error {
	var name, args string
	if tc.Function != nil {
		name = tc.Function.Name
		args = tc.Function.Arguments
	}

	if tc.ID != "" {
		if acc, ok := n.byID[tc.ID]; ok {
			acc.arguments.WriteString(args)
			n.latest = acc
			return nil
		}
		if name == "" {
			return domain.NewGenerationError(domain.ErrMalformedToolCall,
				"tool call "+tc.ID+" has no function name", nil)
		}
		acc := &toolCallAccumulator{id: tc.ID, name: name}
		acc.arguments.WriteString(args)
		n.byID[tc.ID] = acc
		n.calls = append(n.calls, acc)
		n.latest = acc
		return nil
	}

	// Continuation fragments carry no ID and belong to the call opened last.
	if n.latest == nil {
		if args == "" {
			return nil
		}
		return domain.NewGenerationError(domain.ErrMalformedToolCall,
			"tool call arguments before any tool call was announced", nil)
	}
	n.latest.arguments.WriteString(args)
	return nil
}

// flushToolCalls finalizes every open accumulator into one event.
func (n *normalizer) flushToolCalls() (*domain.RawTokenEvent, error) {
	if len(n.calls) == 0 {
		return nil, nil
	}

	calls := make([]domain.ToolCall, 0, len(n.calls))
	for _, acc := range n.calls {
		call, err := acc.finalize()
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	n.calls = nil
	n.byID = make(map[string]*toolCallAccumulator)
	n.latest = nil

	ev := n.event(domain.RawTokenEvent{
		Token:     domain.Token{ID: n.nextID()},
		ToolCalls: calls,
	})
	return &ev, nil
}

// terminal builds the closing event. Usage seen anywhere in the stream is
// carried on it even if an earlier event already reported it.
func (n *normalizer) terminal() domain.RawTokenEvent {
	text := n.generated.String()
	return domain.RawTokenEvent{
		Token:         domain.Token{ID: n.tokenID, Special: true},
		GeneratedText: &text,
		Usage:         n.usage,
	}
}

func (n *normalizer) nextID() int {
	id := n.tokenID
	n.tokenID++
	return id
}

// event attaches usage that has not yet been delivered.
func (n *normalizer) event(ev domain.RawTokenEvent) domain.RawTokenEvent {
	if n.pendingUsage != nil {
		ev.Usage = n.pendingUsage
		n.pendingUsage = nil
	}
	return ev
}

// normalizeStream converts a chunk stream into a RawTokenEvent stream. The
// returned channel is closed after the terminal event, after an error event,
// or when ctx is cancelled. finish, if set, may amend the terminal event.
func normalizeStream(ctx context.Context, in <-chan openaiapi.StreamResult, finish func(*domain.RawTokenEvent)) <-chan domain.RawTokenEvent {
	out := make(chan domain.RawTokenEvent)

	go func() {
		defer close(out)

		send := func(ev domain.RawTokenEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		n := newNormalizer()
		for result := range in {
			if result.Err != nil {
				send(domain.RawTokenEvent{Error: domain.NewGenerationError(domain.ErrUpstreamStream, "", result.Err)})
				return
			}

			events, err := n.handle(result.Chunk)
			for _, ev := range events {
				if !send(ev) {
					return
				}
			}
			if err != nil {
				send(domain.RawTokenEvent{Error: err})
				return
			}
		}

		if ctx.Err() != nil {
			return
		}

		// Upstreams that end with finish_reason "stop" after streaming tool
		// calls still get their calls delivered.
		ev, err := n.flushToolCalls()
		if err != nil {
			send(domain.RawTokenEvent{Error: err})
			return
		}
		if ev != nil && !send(*ev) {
			return
		}

		term := n.terminal()
		if finish != nil {
			finish(&term)
		}
		send(term)
	}()

	return out
}

// fromCompletion synthesizes the single terminal event of a non-streaming
// response.
func fromCompletion(resp *openaiapi.ChatCompletionResponse) (domain.RawTokenEvent, error) {
	var text string
	var calls []domain.ToolCall

	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		text = msg.Text()
		for _, tc := range msg.ToolCalls {
			if tc.Function.Name == "" {
				return domain.RawTokenEvent{}, domain.NewGenerationError(domain.ErrMalformedToolCall,
					"tool call "+tc.ID+" has no function name", nil)
			}
			acc := &toolCallAccumulator{id: tc.ID, name: tc.Function.Name}
			acc.arguments.WriteString(tc.Function.Arguments)
			call, err := acc.finalize()
			if err != nil {
				return domain.RawTokenEvent{}, err
			}
			calls = append(calls, call)
		}
	}

	return domain.RawTokenEvent{
		Token:         domain.Token{Special: true},
		ToolCalls:     calls,
		GeneratedText: &text,
		Usage:         toUsageInfo(resp.Usage),
	}, nil
}

func toUsageInfo(u *openaiapi.Usage) *domain.UsageInfo {
	if u == nil {
		return nil
	}
	info := &domain.UsageInfo{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil && u.PromptTokensDetails.CachedTokens > 0 {
		info.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return info
}
