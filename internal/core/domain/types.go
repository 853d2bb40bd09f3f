package domain

import (
	"encoding/json"
	"time"
)

// EndpointType identifies the upstream API family an endpoint speaks.
type EndpointType string

const (
	EndpointTypeOpenAI           EndpointType = "openai"
	EndpointTypeOpenAICompatible EndpointType = "openai-compatible"
)

// EndpointMessage is a single turn handed to a model endpoint.
type EndpointMessage struct {
	From    string `json:"from"` // "user", "assistant" or "system"
	Content string `json:"content"`

	// Files holds multimodal attachments (base64 payloads or stored hashes).
	Files []MessageFile `json:"files,omitempty"`
}

// MessageFile is an attachment on a message.
type MessageFile struct {
	Type  string `json:"type"` // "hash" or "base64"
	Name  string `json:"name"`
	Value string `json:"value"`
	Mime  string `json:"mime"`
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"` // JSON Schema
}

// ToolCall is a fully assembled tool invocation requested by the model.
type ToolCall struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ToolResult is the outcome of running a ToolCall, fed back on the next turn.
type ToolResult struct {
	Call    ToolCall `json:"call"`
	Status  string   `json:"status"` // "success" or "error"
	Outputs []any    `json:"outputs,omitempty"`
	Message string   `json:"message,omitempty"`
}

// GenerateSettings are per-request sampling overrides.
type GenerateSettings struct {
	MaxNewTokens int      `json:"max_new_tokens,omitempty" koanf:"max_new_tokens"`
	Temperature  *float32 `json:"temperature,omitempty" koanf:"temperature"`
	TopP         *float32 `json:"top_p,omitempty" koanf:"top_p"`
	Stop         []string `json:"stop,omitempty" koanf:"stop"`
}

// EndpointRequest is everything an endpoint needs to produce a token stream.
type EndpointRequest struct {
	Messages         []EndpointMessage `json:"messages"`
	Preprompt        string            `json:"preprompt,omitempty"`
	ContinueMessage  bool              `json:"continue_message"`
	GenerateSettings *GenerateSettings `json:"generate_settings,omitempty"`
	Tools            []Tool            `json:"tools,omitempty"`
	ToolResults      []ToolResult      `json:"tool_results,omitempty"`
	IsMultimodal     bool              `json:"is_multimodal"`
	ConversationID   string            `json:"conversation_id"`
}

// UsageInfo is token accounting for one generation.
type UsageInfo struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CachedTokens    int `json:"cached_tokens,omitempty"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// WebSource is a citation attached to a generated answer.
type WebSource struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Token is the per-step token payload of a RawTokenEvent.
type Token struct {
	ID      int    `json:"id"`
	Text    string `json:"text"`
	Special bool   `json:"special"`
}

// RawTokenEvent is one step of generation as produced by an endpoint.
// At most one event in a stream carries GeneratedText and it is always the last.
type RawTokenEvent struct {
	Token Token

	// ToolCalls is set only on the event that signals tool-call completion.
	ToolCalls []ToolCall

	// GeneratedText marks the terminal event and carries the full text.
	GeneratedText *string

	Usage      *UsageInfo
	WebSources []WebSource

	// Error reports an in-stream failure; the channel is closed after it.
	Error error
}

// IsTerminal reports whether the event ends the sequence.
func (e RawTokenEvent) IsTerminal() bool {
	return e.GeneratedText != nil
}

// MessageUpdateType tags the MessageUpdate union.
type MessageUpdateType string

const (
	MessageUpdateStream      MessageUpdateType = "stream"
	MessageUpdateReasoning   MessageUpdateType = "reasoning"
	MessageUpdateToolCalls   MessageUpdateType = "toolCalls"
	MessageUpdateFinalAnswer MessageUpdateType = "finalAnswer"
)

// ReasoningUpdateType is the subtype of a reasoning update.
type ReasoningUpdateType string

const (
	ReasoningUpdateStatus ReasoningUpdateType = "status"
	ReasoningUpdateStream ReasoningUpdateType = "stream"
)

// MessageUpdate is a UI-facing update. Type selects which fields are meaningful:
//
//	stream       Token
//	reasoning    Subtype + Status (status) or Token (stream)
//	toolCalls    ToolCalls
//	finalAnswer  Text, Interrupted, WebSources, Usage
type MessageUpdate struct {
	Type    MessageUpdateType   `json:"type"`
	Subtype ReasoningUpdateType `json:"subtype,omitempty"`
	Token   string              `json:"token,omitempty"`
	Status  string              `json:"status,omitempty"`

	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	Text        string      `json:"text,omitempty"`
	Interrupted bool        `json:"interrupted,omitempty"`
	WebSources  []WebSource `json:"webSources,omitempty"`
	Usage       *UsageInfo  `json:"usage,omitempty"`
}

// MarshalJSON always writes text and interrupted on final answers, even when
// empty or false; other update types omit them.
func (u MessageUpdate) MarshalJSON() ([]byte, error) {
	type plain MessageUpdate
	if u.Type != MessageUpdateFinalAnswer {
		return json.Marshal(plain(u))
	}
	return json.Marshal(struct {
		plain
		Text        string `json:"text"`
		Interrupted bool   `json:"interrupted"`
	}{plain(u), u.Text, u.Interrupted})
}

// StreamUpdate builds a plain content update.
func StreamUpdate(token string) MessageUpdate {
	return MessageUpdate{Type: MessageUpdateStream, Token: token}
}

// ReasoningStatus builds a reasoning status line.
func ReasoningStatus(status string) MessageUpdate {
	return MessageUpdate{Type: MessageUpdateReasoning, Subtype: ReasoningUpdateStatus, Status: status}
}

// ReasoningStream builds a reasoning token update.
func ReasoningStream(token string) MessageUpdate {
	return MessageUpdate{Type: MessageUpdateReasoning, Subtype: ReasoningUpdateStream, Token: token}
}

// ToolCallsUpdate builds a tool-call update.
func ToolCallsUpdate(calls []ToolCall) MessageUpdate {
	return MessageUpdate{Type: MessageUpdateToolCalls, ToolCalls: calls}
}

// FinalAnswer builds the terminal update.
func FinalAnswer(text string, interrupted bool, sources []WebSource, usage *UsageInfo) MessageUpdate {
	return MessageUpdate{
		Type:        MessageUpdateFinalAnswer,
		Text:        text,
		Interrupted: interrupted,
		WebSources:  sources,
		Usage:       usage,
	}
}

// AbortRecord is a persisted stop request.
type AbortRecord struct {
	ConversationID string    `json:"conversation_id"`
	RequestedAt    time.Time `json:"requested_at"`
}
