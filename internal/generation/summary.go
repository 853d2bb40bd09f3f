package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

const (
	summaryMaxTokens = 1024
	statusMaxTokens  = 64

	// statusWindow is how much of the reasoning tail a status line describes.
	statusWindow = 300
)

const summaryPreprompt = `Summarize the reasoning steps below into a short final answer for the user, one paragraph at most. If the reasoning contains a code solution, include the code.

If the question is casual conversation, just answer it without walking through steps. Otherwise summarize step by step, leaving out dead ends and unnecessary detail.

Do not start with labels such as "Answer:" or "Response:".`

const statusPreprompt = `You write one-line progress updates for a model that is thinking. Given the latest reasoning, reply with a single short sentence that starts with a verb ending in -ing and ends with "...". Describe what is being worked on, never the conclusion. Reply with the sentence only.`

// GenerateText runs req to completion and returns the final answer text,
// discarding intermediate updates.
func (g *Generator) GenerateText(ctx context.Context, req *Request) (string, error) {
	var text string
	var done bool
	err := g.Generate(ctx, req, func(u domain.MessageUpdate) error {
		if u.Type == domain.MessageUpdateFinalAnswer {
			text = u.Text
			done = true
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !done {
		return "", fmt.Errorf("generation finished without a final answer")
	}
	return text, nil
}

// taskModel picks the model for delegated summaries. Summarize reasoning is
// stripped so the delegated call cannot recurse.
func (g *Generator) taskModel(req *Request) *Model {
	if g.taskModels != nil {
		if m := g.taskModels.TaskModel(); m != nil {
			return m.withoutSummarize()
		}
	}
	return req.Model.withoutSummarize()
}

// summarize asks the task model to condense the reasoning buffer into an
// answer to the last user message. It blocks the calling generation.
func (g *Generator) summarize(ctx context.Context, req *Request, buffer string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "generation.Summarize")
	defer span.End()

	question := ""
	if n := len(req.Messages); n > 0 {
		question = req.Messages[n-1].Content
	}

	text, err := g.GenerateText(ctx, &Request{
		Model:          g.taskModel(req),
		ConversationID: uuid.NewString(),
		Messages: []domain.EndpointMessage{{
			From:    "user",
			Content: fmt.Sprintf("Question: %s\n\nReasoning: %s", question, buffer),
		}},
		Preprompt:        summaryPreprompt,
		GenerateSettings: &domain.GenerateSettings{MaxNewTokens: summaryMaxTokens},
		delegated:        true,
	})
	if err != nil {
		span.RecordError(err)
		return "", domain.NewGenerationError(domain.ErrSummarization, req.Model.Name, err)
	}
	return text, nil
}

// summarizeInBackground starts a status summary of the reasoning tail and
// returns immediately. The result lands in s.pendingStatus for the next
// reasoning token to pick up. It dies with ctx.
func (g *Generator) summarizeInBackground(ctx context.Context, req *Request, s *session, buffer string, logger *slog.Logger) {
	if req.delegated {
		return
	}

	tail := reasoningTail(buffer, statusWindow)
	model := g.taskModel(req)

	go func() {
		text, err := g.GenerateText(ctx, &Request{
			Model:            model,
			ConversationID:   uuid.NewString(),
			Messages:         []domain.EndpointMessage{{From: "user", Content: tail}},
			Preprompt:        statusPreprompt,
			GenerateSettings: &domain.GenerateSettings{MaxNewTokens: statusMaxTokens},
			delegated:        true,
		})
		if err != nil {
			if ctx.Err() == nil {
				err = domain.NewGenerationError(domain.ErrBackgroundSummary, model.Name, err)
				logger.Debug("background reasoning summary failed", slog.String("error", err.Error()))
			}
			return
		}

		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		s.pendingStatus.Store(&text)
	}()
}

// reasoningTail returns at most n bytes from the end of s without splitting a rune.
func reasoningTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
