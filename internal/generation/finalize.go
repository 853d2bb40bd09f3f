package generation

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// TrimStops strips trailing whitespace and configured stop sequences from
// text until neither remains, and reports whether a stop sequence was removed.
// Trimming an already trimmed text returns it unchanged.
func TrimStops(text string, stops []string) (string, bool) {
	removed := false
	for {
		text = strings.TrimRightFunc(text, unicode.IsSpace)
		changed := false
		for _, stop := range stops {
			if stop == "" || !strings.HasSuffix(text, stop) {
				continue
			}
			text = strings.TrimSuffix(text, stop)
			removed = true
			changed = true
		}
		if !changed {
			return text, removed
		}
	}
}

// finalAnswer builds the FinalAnswer update for the terminal event.
func (g *Generator) finalAnswer(ctx context.Context, req *Request, s *session, ev domain.RawTokenEvent, emit Emit, logger *slog.Logger) (domain.MessageUpdate, error) {
	stops := req.Model.Stop

	interrupted := !ev.Token.Special && !slices.Contains(stops, ev.Token.Text)
	text, removed := TrimStops(*ev.GeneratedText, stops)
	if removed {
		interrupted = false
	}

	answer := text
	usage := ev.Usage
	buffer := string(s.buffer)

	switch r := req.Model.Reasoning.(type) {
	case *RegexReasoning:
		answer = regexAnswer(r, buffer, text, logger)

	case *SummarizeReasoning:
		if err := emit(domain.ReasoningStatus(StatusSummarizing)); err != nil {
			return domain.MessageUpdate{}, err
		}
		summary, err := g.summarize(ctx, req, buffer)
		if err != nil {
			logger.Error("reasoning summary failed, using raw answer", slog.String("error", err.Error()))
			break
		}
		answer = summary
		if err := emit(domain.ReasoningStatus(g.doneStatus(s))); err != nil {
			return domain.MessageUpdate{}, err
		}

	case *TokensReasoning:
		var reasoningTokens int
		var ok bool
		answer, reasoningTokens, ok = stripReasoningSpan(r, buffer, text)
		if ok && usage != nil {
			u := *usage
			u.ReasoningTokens = reasoningTokens
			usage = &u
		}
	}

	return domain.FinalAnswer(answer, interrupted, ev.WebSources, usage), nil
}

func regexAnswer(r *RegexReasoning, buffer, fallback string, logger *slog.Logger) string {
	m, err := r.Pattern.FindStringMatch(buffer)
	if err != nil {
		logger.Warn("reasoning regex failed", slog.String("error", err.Error()))
		return fallback
	}
	if m == nil {
		return fallback
	}
	group := m.GroupByNumber(1)
	if group == nil || len(group.Captures) == 0 {
		return fallback
	}
	return group.String()
}

// stripReasoningSpan removes the marker-delimited reasoning span, markers
// included, from text. The span is located in the reasoning buffer; only its
// start is searched for in text, so an end marker quoted later in the answer
// is kept. It reports the span length in the buffer as a proxy for reasoning
// tokens, and ok=false when the buffer lacks either marker.
func stripReasoningSpan(r *TokensReasoning, buffer, text string) (answer string, span int, ok bool) {
	bufBegin := 0
	if r.Begin != "" {
		bufBegin = strings.Index(buffer, r.Begin)
	}
	bufEnd := strings.LastIndex(buffer, r.End)
	if bufBegin == -1 || bufEnd == -1 || bufEnd < bufBegin {
		return text, 0, false
	}
	span = bufEnd - bufBegin

	textBegin := 0
	if r.Begin != "" {
		textBegin = strings.Index(text, r.Begin)
		if textBegin == -1 {
			return text, span, true
		}
	}

	textEnd := textBegin + span
	if textEnd > len(text) || !strings.HasPrefix(text[textEnd:], r.End) {
		// The text diverged from the buffer; fall back to the first end
		// marker after the span start.
		rel := strings.Index(text[textBegin:], r.End)
		if rel == -1 {
			return text, span, true
		}
		textEnd = textBegin + rel
	}

	return text[:textBegin] + text[textEnd+len(r.End):], span, true
}
