// Package openai adapts OpenAI-compatible chat completion APIs to the
// endpoint contract: a stream of RawTokenEvents ending in one terminal event.
package openai

import (
	"context"
	"log/slog"
	"net/http"

	openaiapi "github.com/tjfontaine/polyglot-chat/internal/api/openai"
	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// UsageEstimator produces usage counts when the upstream reports none.
type UsageEstimator interface {
	Estimate(model string, req *domain.EndpointRequest, output string) *domain.UsageInfo
}

// EndpointOption configures the endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) EndpointOption {
	return func(e *Endpoint) {
		e.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) EndpointOption {
	return func(e *Endpoint) {
		e.httpClient = httpClient
	}
}

// WithStreaming selects server-sent events (the default) or a single
// non-streaming completion.
func WithStreaming(stream bool) EndpointOption {
	return func(e *Endpoint) {
		e.streaming = stream
	}
}

// WithDefaults sets the model's configured sampling parameters.
func WithDefaults(settings domain.GenerateSettings) EndpointOption {
	return func(e *Endpoint) {
		e.defaults = settings
	}
}

// WithUsageEstimator fills in usage locally when the upstream omits it.
func WithUsageEstimator(u UsageEstimator) EndpointOption {
	return func(e *Endpoint) {
		e.estimator = u
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EndpointOption {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

// Endpoint implements ports.Endpoint against one upstream model.
type Endpoint struct {
	client     *openaiapi.Client
	model      string
	baseURL    string
	httpClient *http.Client
	streaming  bool
	defaults   domain.GenerateSettings
	estimator  UsageEstimator
	logger     *slog.Logger
}

// New creates an endpoint that sends requests for model.
func New(apiKey, model string, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		model:     model,
		streaming: true,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	var clientOpts []openaiapi.ClientOption
	if e.baseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(e.baseURL))
	}
	if e.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(e.httpClient))
	}

	e.client = openaiapi.NewClient(apiKey, clientOpts...)
	return e
}

// Model returns the upstream model name.
func (e *Endpoint) Model() string {
	return e.model
}

// Generate starts a generation. Errors before the first byte of the response
// are returned directly; later failures arrive as an event with Error set.
func (e *Endpoint) Generate(ctx context.Context, req *domain.EndpointRequest) (<-chan domain.RawTokenEvent, error) {
	apiReq := toAPIRequest(e.model, e.defaults, req)

	if !e.streaming {
		return e.complete(ctx, req, apiReq)
	}

	stream, err := e.client.StreamChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	return normalizeStream(ctx, stream, func(term *domain.RawTokenEvent) {
		e.estimate(req, term)
	}), nil
}

func (e *Endpoint) complete(ctx context.Context, req *domain.EndpointRequest, apiReq *openaiapi.ChatCompletionRequest) (<-chan domain.RawTokenEvent, error) {
	resp, err := e.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	term, err := fromCompletion(resp)
	out := make(chan domain.RawTokenEvent, 1)
	if err != nil {
		out <- domain.RawTokenEvent{Error: err}
	} else {
		e.estimate(req, &term)
		out <- term
	}
	close(out)
	return out, nil
}

func (e *Endpoint) estimate(req *domain.EndpointRequest, term *domain.RawTokenEvent) {
	if e.estimator == nil || term.Usage != nil || term.GeneratedText == nil {
		return
	}
	term.Usage = e.estimator.Estimate(e.model, req, *term.GeneratedText)
	e.logger.Debug("estimated usage",
		slog.String("model", e.model),
		slog.Int("input_tokens", term.Usage.InputTokens),
		slog.Int("output_tokens", term.Usage.OutputTokens))
}
