package tokens

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// Chat formatting overhead, per OpenAI's cookbook.
const (
	tokensPerMessage  = 3
	tokensPerRole     = 1
	tokensPerTool     = 7
	assistantPriming  = 3
	defaultCharsPerTk = 4.0
)

// Estimator approximates token counts from character length. It is the
// fallback for models without a tiktoken encoding.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: defaultCharsPerTk}
}

// CountText estimates the token count of text.
func (e *Estimator) CountText(_ string, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	n := int(float64(len(text)) / e.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n, nil
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

type textCounter interface {
	CountText(model, text string) (int, error)
}

// UsageEstimator fills in UsageInfo for endpoints configured with
// estimate_usage, when the upstream stream carries no usage of its own.
type UsageEstimator struct {
	tiktoken *TiktokenCounter
	fallback *Estimator
	logger   *slog.Logger
}

// NewUsageEstimator creates a UsageEstimator.
func NewUsageEstimator(logger *slog.Logger) *UsageEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageEstimator{
		tiktoken: NewTiktokenCounter(),
		fallback: NewEstimator(),
		logger:   logger,
	}
}

func (u *UsageEstimator) counterFor(model string) textCounter {
	if u.tiktoken.SupportsModel(model) {
		return u.tiktoken
	}
	return u.fallback
}

func (u *UsageEstimator) count(c textCounter, model, text string) int {
	n, err := c.CountText(model, text)
	if err != nil {
		u.logger.Debug("token count failed, using estimate",
			slog.String("model", model),
			slog.String("error", err.Error()))
		n, _ = u.fallback.CountText(model, text)
	}
	return n
}

// Estimate returns input and output token counts for a completed generation.
func (u *UsageEstimator) Estimate(model string, req *domain.EndpointRequest, output string) *domain.UsageInfo {
	c := u.counterFor(model)

	input := 0
	if req != nil {
		if req.Preprompt != "" {
			input += tokensPerMessage + tokensPerRole + u.count(c, model, req.Preprompt)
		}
		for _, m := range req.Messages {
			input += tokensPerMessage + tokensPerRole + u.count(c, model, m.Content)
		}
		for _, t := range req.Tools {
			input += tokensPerTool + u.count(c, model, t.Name) + u.count(c, model, t.Description)
			if t.Parameters != nil {
				if b, err := json.Marshal(t.Parameters); err == nil {
					input += u.count(c, model, string(b))
				}
			}
		}
		input += assistantPriming
	}

	return &domain.UsageInfo{
		InputTokens:  input,
		OutputTokens: u.count(c, model, output),
	}
}
