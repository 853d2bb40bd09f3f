// Package chat serves the conversation API: streaming generations as NDJSON
// MessageUpdates, stop requests, and the model list.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/generation"
	"github.com/tjfontaine/polyglot-chat/internal/server"
)

// ContentType is the media type of the update stream.
const ContentType = "application/x-ndjson"

// ModelSource resolves configured models.
type ModelSource interface {
	Get(name string) (*generation.Model, bool)
	List() []*generation.Model
}

// Generator runs one generation.
type Generator interface {
	Generate(ctx context.Context, req *generation.Request, emit generation.Emit) error
}

// AbortRegistry records stop requests.
type AbortRegistry interface {
	RequestAbort(ctx context.Context, conversationID string, at time.Time) error
	Len() int
	Snapshot() []domain.AbortRecord
}

type Handler struct {
	models    ModelSource
	generator Generator
	aborts    AbortRegistry
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(models ModelSource, generator Generator, aborts AbortRegistry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		models:    models,
		generator: generator,
		aborts:    aborts,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateRequest is the body of POST /conversation/{id}.
type GenerateRequest struct {
	Model       string                   `json:"model"`
	Messages    []domain.EndpointMessage `json:"messages"`
	Preprompt   string                   `json:"preprompt,omitempty"`
	IsContinue  bool                     `json:"is_continue,omitempty"`
	Parameters  *domain.GenerateSettings `json:"parameters,omitempty"`
	Tools       []domain.Tool            `json:"tools,omitempty"`
	ToolResults []domain.ToolResult      `json:"tool_results,omitempty"`

	// PromptedAt is when the user sent the message; defaults to receipt time.
	PromptedAt *time.Time `json:"prompted_at,omitempty"`
}

// streamError is written as the last line when a generation fails after the
// stream has started.
type streamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ModelInfo is one entry of GET /api/models.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Multimodal  bool   `json:"multimodal"`
	Reasoning   bool   `json:"reasoning"`
}

// AbortsResponse is the body of GET /admin/aborts.
type AbortsResponse struct {
	Count  int                  `json:"count"`
	Aborts []domain.AbortRecord `json:"aborts"`
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	received := h.now()

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.NewAPIError(domain.ErrorTypeInvalidRequest, fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if len(req.Messages) == 0 {
		h.writeError(w, r, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "messages must not be empty"))
		return
	}

	model, ok := h.models.Get(req.Model)
	if !ok {
		h.writeError(w, r, domain.NewAPIError(domain.ErrorTypeNotFound, fmt.Sprintf("model %q not found", req.Model)).
			WithCode(domain.ErrorCodeModelNotFound))
		return
	}

	server.AddLogField(r.Context(), "conversation_id", convID)
	server.AddLogField(r.Context(), "model", model.Name)

	promptedAt := received
	if req.PromptedAt != nil {
		promptedAt = *req.PromptedAt
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, domain.NewAPIError(domain.ErrorTypeServer, "Streaming not supported"))
		return
	}

	started := false
	enc := json.NewEncoder(w)
	emit := func(u domain.MessageUpdate) error {
		if !started {
			w.Header().Set("Content-Type", ContentType)
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(u); err != nil {
			return fmt.Errorf("write update: %w", err)
		}
		flusher.Flush()
		return nil
	}

	err := h.generator.Generate(r.Context(), &generation.Request{
		Model:            model,
		ConversationID:   convID,
		Messages:         req.Messages,
		Preprompt:        req.Preprompt,
		IsContinue:       req.IsContinue,
		GenerateSettings: req.Parameters,
		Tools:            req.Tools,
		ToolResults:      req.ToolResults,
		PromptedAt:       promptedAt,
	}, emit)

	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrGenerationAborted):
		server.AddLogField(r.Context(), "aborted", "true")
		if !started {
			w.WriteHeader(http.StatusNoContent)
		}
		return
	case r.Context().Err() != nil:
		// Client went away or the request timed out.
		server.AddError(r.Context(), err)
		return
	}

	server.AddError(r.Context(), err)
	h.logger.Error("generation failed",
		slog.String("conversation_id", convID),
		slog.String("model", model.Name),
		slog.String("error", err.Error()))

	if !started {
		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) {
			apiErr = domain.NewAPIError(domain.ErrorTypeServer, err.Error()).WithStatusCode(http.StatusBadGateway)
		}
		h.writeError(w, r, apiErr)
		return
	}

	_ = enc.Encode(streamError{Type: "error", Message: err.Error()})
	flusher.Flush()
}

func (h *Handler) HandleStopGenerating(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	server.AddLogField(r.Context(), "conversation_id", convID)

	if err := h.aborts.RequestAbort(r.Context(), convID, h.now()); err != nil {
		// The local registry already holds the request; only other
		// processes miss it.
		server.AddError(r.Context(), err)
		h.logger.Warn("stop request not persisted",
			slog.String("conversation_id", convID),
			slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models := h.models.List()
	resp := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		resp = append(resp, ModelInfo{
			Name:        m.Name,
			DisplayName: m.DisplayName,
			Multimodal:  m.Multimodal,
			Reasoning:   m.Reasoning != nil,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleListAborts(w http.ResponseWriter, r *http.Request) {
	aborts := h.aborts.Snapshot()
	if aborts == nil {
		aborts = []domain.AbortRecord{}
	}
	writeJSON(w, http.StatusOK, AbortsResponse{Count: h.aborts.Len(), Aborts: aborts})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, apiErr *domain.APIError) {
	server.AddError(r.Context(), apiErr)
	writeJSON(w, apiErr.HTTPStatusCode(), map[string]*domain.APIError{"error": apiErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
