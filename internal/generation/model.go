package generation

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/pkg/config"
)

// regexTimeout bounds backtracking on operator-supplied patterns.
const regexTimeout = 2 * time.Second

// Model is everything the generator needs to know about one configured model.
type Model struct {
	Name        string
	DisplayName string
	Multimodal  bool
	Preprompt   string

	// Stop holds the stop sequences trimmed from final answers.
	Stop []string

	// Reasoning is nil for models that answer directly.
	Reasoning Reasoning

	Endpoint ports.Endpoint
}

// Reasoning is the closed set of reasoning strategies: *RegexReasoning,
// *SummarizeReasoning and *TokensReasoning.
type Reasoning interface {
	// activeAtStart reports whether generation begins in reasoning mode.
	activeAtStart() bool
	kind() string
}

// RegexReasoning extracts the answer from the reasoning buffer with the first
// capture group of a pattern.
type RegexReasoning struct {
	Pattern *regexp2.Regexp
}

// SummarizeReasoning treats the whole output as reasoning and asks the task
// model for a concise answer.
type SummarizeReasoning struct{}

// TokensReasoning brackets reasoning between marker tokens. An empty Begin
// means the model starts out reasoning.
type TokensReasoning struct {
	Begin string
	End   string
}

func (*RegexReasoning) activeAtStart() bool     { return true }
func (*SummarizeReasoning) activeAtStart() bool { return true }
func (r *TokensReasoning) activeAtStart() bool  { return r.Begin == "" }

func (*RegexReasoning) kind() string     { return config.ReasoningRegex }
func (*SummarizeReasoning) kind() string { return config.ReasoningSummarize }
func (*TokensReasoning) kind() string    { return config.ReasoningTokens }

// NewReasoning builds the strategy for cfg. A nil cfg yields nil.
func NewReasoning(cfg *config.ReasoningConfig) (Reasoning, error) {
	if cfg == nil {
		return nil, nil
	}

	switch cfg.Type {
	case config.ReasoningRegex:
		re, err := regexp2.Compile(cfg.Regex, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("compile reasoning regex: %w", err)
		}
		re.MatchTimeout = regexTimeout
		return &RegexReasoning{Pattern: re}, nil
	case config.ReasoningSummarize:
		return &SummarizeReasoning{}, nil
	case config.ReasoningTokens:
		if cfg.EndToken == "" {
			return nil, fmt.Errorf("tokens reasoning needs an end token")
		}
		return &TokensReasoning{Begin: cfg.BeginToken, End: cfg.EndToken}, nil
	default:
		return nil, fmt.Errorf("unknown reasoning type %q", cfg.Type)
	}
}

// NewModel builds a Model from configuration and the endpoint serving it.
func NewModel(cfg config.ModelConfig, endpoint ports.Endpoint) (*Model, error) {
	reasoning, err := NewReasoning(cfg.Reasoning)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", cfg.Name, err)
	}

	display := cfg.DisplayName
	if display == "" {
		display = cfg.Name
	}

	return &Model{
		Name:        cfg.Name,
		DisplayName: display,
		Multimodal:  cfg.Multimodal,
		Preprompt:   cfg.Preprompt,
		Stop:        cfg.Parameters.Stop,
		Reasoning:   reasoning,
		Endpoint:    endpoint,
	}, nil
}

// withoutSummarize returns m with summarize reasoning removed so a delegated
// summary cannot recurse.
func (m *Model) withoutSummarize() *Model {
	if _, ok := m.Reasoning.(*SummarizeReasoning); !ok {
		return m
	}
	cp := *m
	cp.Reasoning = nil
	return &cp
}

// Request is one generation: a conversation turn against a model.
type Request struct {
	Model          *Model
	ConversationID string

	Messages         []domain.EndpointMessage
	Preprompt        string
	IsContinue       bool
	GenerateSettings *domain.GenerateSettings
	Tools            []domain.Tool
	ToolResults      []domain.ToolResult

	// PromptedAt is when the user sent the prompt. Stop requests made before
	// it are ignored. Zero means the generation's start time.
	PromptedAt time.Time

	// delegated marks summary sub-generations, which never spawn their own
	// background summaries.
	delegated bool
}

func (r *Request) endpointRequest() *domain.EndpointRequest {
	preprompt := r.Preprompt
	if preprompt == "" {
		preprompt = r.Model.Preprompt
	}
	return &domain.EndpointRequest{
		Messages:         r.Messages,
		Preprompt:        preprompt,
		ContinueMessage:  r.IsContinue,
		GenerateSettings: r.GenerateSettings,
		Tools:            r.Tools,
		ToolResults:      r.ToolResults,
		IsMultimodal:     r.Model.Multimodal,
		ConversationID:   r.ConversationID,
	}
}
