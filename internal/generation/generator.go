// Package generation turns an endpoint's raw token stream into the update
// stream shown to the user: reasoning detection, stop trimming, tool calls,
// usage and cancellation.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// Status lines emitted while reasoning.
const (
	StatusStartedReasoning = "Started reasoning..."
	StatusStartedThinking  = "Started thinking..."
	StatusSummarizing      = "Summarizing reasoning..."
)

// DefaultStatusInterval throttles background reasoning summaries.
const DefaultStatusInterval = 4 * time.Second

// AbortLookup reports when a stop was last requested for a conversation.
type AbortLookup interface {
	Lookup(conversationID string) (time.Time, bool)
}

// TaskModelSource supplies the model used for summaries. It may return nil,
// in which case the generating model summarizes itself.
type TaskModelSource interface {
	TaskModel() *Model
}

// Emit receives updates in order. Returning an error stops the generation.
type Emit func(domain.MessageUpdate) error

// Option configures a Generator.
type Option func(*Generator)

// WithTaskModel sets where summary requests are sent.
func WithTaskModel(src TaskModelSource) Option {
	return func(g *Generator) {
		g.taskModels = src
	}
}

// WithStatusInterval sets the background summary throttle.
func WithStatusInterval(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.statusInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator runs generations. It holds no per-generation state and is safe
// for concurrent use.
type Generator struct {
	aborts         AbortLookup
	taskModels     TaskModelSource
	statusInterval time.Duration
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// New creates a Generator that polls aborts for stop requests.
func New(aborts AbortLookup, opts ...Option) *Generator {
	g := &Generator{
		aborts:         aborts,
		statusInterval: DefaultStatusInterval,
		logger:         slog.Default(),
		tracer:         otel.Tracer("github.com/tjfontaine/polyglot-chat/internal/generation"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// session is the per-generation reasoning state.
type session struct {
	reasoning bool
	buffer    []byte

	startedAt     time.Time
	lastStatusAt  time.Time
	pendingStatus atomic.Pointer[string]
}

// Generate streams updates for req through emit. On success exactly one
// FinalAnswer update is emitted and it is the last one. Fatal failures return
// an error without a FinalAnswer; a stop request returns an error matching
// domain.ErrGenerationAborted.
func (g *Generator) Generate(ctx context.Context, req *Request, emit Emit) (err error) {
	if req == nil || req.Model == nil || req.Model.Endpoint == nil {
		return fmt.Errorf("generation request has no model endpoint")
	}

	ctx, span := g.tracer.Start(ctx, "generation.Generate", trace.WithAttributes(
		attribute.String("model", req.Model.Name),
		attribute.String("conversation_id", req.ConversationID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Cancelling abandons the producer without draining it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{startedAt: g.now()}
	s.lastStatusAt = s.startedAt

	promptedAt := req.PromptedAt
	if promptedAt.IsZero() {
		promptedAt = s.startedAt
	}

	logger := g.logger.With(
		slog.String("model", req.Model.Name),
		slog.String("conversation_id", req.ConversationID))

	if r := req.Model.Reasoning; r != nil {
		span.SetAttributes(attribute.String("reasoning", r.kind()))
	}
	if r := req.Model.Reasoning; r != nil && r.activeAtStart() {
		s.reasoning = true
		if err := emit(domain.ReasoningStatus(StatusStartedReasoning)); err != nil {
			return err
		}
	}

	events, err := req.Model.Endpoint.Generate(ctx, req.endpointRequest())
	if err != nil {
		return domain.NewGenerationError(domain.ErrUpstreamStream, "start generation", err)
	}

	for {
		var ev domain.RawTokenEvent
		var ok bool
		select {
		case ev, ok = <-events:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			return domain.NewGenerationError(domain.ErrUpstreamStream, "stream ended without a final answer", nil)
		}
		if ev.Error != nil {
			var genErr *domain.GenerationError
			if errors.As(ev.Error, &genErr) {
				return ev.Error
			}
			return domain.NewGenerationError(domain.ErrUpstreamStream, "", ev.Error)
		}

		if ev.IsTerminal() {
			// Non-streaming endpoints deliver tool calls on the terminal event.
			if len(ev.ToolCalls) > 0 {
				if err := emit(domain.ToolCallsUpdate(ev.ToolCalls)); err != nil {
					return err
				}
			}
			final, err := g.finalAnswer(ctx, req, s, ev, emit, logger)
			if err != nil {
				return err
			}
			if final.Usage != nil {
				span.SetAttributes(
					attribute.Int("usage.input_tokens", final.Usage.InputTokens),
					attribute.Int("usage.output_tokens", final.Usage.OutputTokens),
					attribute.Int("usage.reasoning_tokens", final.Usage.ReasoningTokens))
			}
			span.SetAttributes(attribute.Bool("interrupted", final.Interrupted))
			return emit(final)
		}

		if err := g.step(ctx, req, s, ev, emit, logger); err != nil {
			return err
		}

		if g.aborted(req.ConversationID, promptedAt) {
			logger.Info("generation aborted")
			span.AddEvent("aborted")
			return domain.NewGenerationError(domain.ErrGenerationAborted, req.ConversationID, nil)
		}
	}
}

// step handles one non-terminal event.
func (g *Generator) step(ctx context.Context, req *Request, s *session, ev domain.RawTokenEvent, emit Emit, logger *slog.Logger) error {
	if len(ev.ToolCalls) > 0 {
		return emit(domain.ToolCallsUpdate(ev.ToolCalls))
	}

	if tokens, ok := req.Model.Reasoning.(*TokensReasoning); ok {
		switch ev.Token.Text {
		case tokens.Begin:
			// An empty begin marker never matches here: reasoning started with the stream.
			if tokens.Begin != "" {
				s.reasoning = true
				s.buffer = append(s.buffer, ev.Token.Text...)
				return emit(domain.ReasoningStatus(StatusStartedThinking))
			}
		case tokens.End:
			s.reasoning = false
			s.buffer = append(s.buffer, ev.Token.Text...)
			return emit(domain.ReasoningStatus(g.doneStatus(s)))
		}
	}

	if ev.Token.Special || ev.Token.Text == "" {
		return nil
	}

	if !s.reasoning {
		return emit(domain.StreamUpdate(ev.Token.Text))
	}

	s.buffer = append(s.buffer, ev.Token.Text...)

	if status := s.pendingStatus.Swap(nil); status != nil {
		if err := emit(domain.ReasoningStatus(*status)); err != nil {
			return err
		}
	}

	if now := g.now(); now.Sub(s.lastStatusAt) > g.statusInterval {
		s.lastStatusAt = now
		g.summarizeInBackground(ctx, req, s, string(s.buffer), logger)
	}

	return emit(domain.ReasoningStream(ev.Token.Text))
}

// doneStatus reports elapsed time since the generation started, in whole seconds.
func (g *Generator) doneStatus(s *session) string {
	elapsed := g.now().Sub(s.startedAt).Round(time.Second)
	return fmt.Sprintf("Done in %ds.", int(elapsed/time.Second))
}

func (g *Generator) aborted(conversationID string, promptedAt time.Time) bool {
	if g.aborts == nil {
		return false
	}
	at, ok := g.aborts.Lookup(conversationID)
	return ok && at.After(promptedAt)
}
