package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-chat/internal/abort"
	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat/internal/generation"
)

type staticModels []*generation.Model

func (s staticModels) Get(name string) (*generation.Model, bool) {
	for _, m := range s {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

func (s staticModels) List() []*generation.Model { return s }

func replay(events ...domain.RawTokenEvent) ports.Endpoint {
	return ports.EndpointFunc(func(ctx context.Context, req *domain.EndpointRequest) (<-chan domain.RawTokenEvent, error) {
		ch := make(chan domain.RawTokenEvent, len(events))
		for _, ev := range events {
			ch <- ev
		}
		close(ch)
		return ch, nil
	})
}

func token(s string) domain.RawTokenEvent {
	return domain.RawTokenEvent{Token: domain.Token{Text: s}}
}

func done(s string) domain.RawTokenEvent {
	return domain.RawTokenEvent{Token: domain.Token{Special: true}, GeneratedText: &s}
}

func newRouter(t *testing.T, models staticModels, aborts *abort.Registry) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(models, generation.New(aborts, generation.WithLogger(logger)), aborts, logger)

	r := chi.NewRouter()
	for _, route := range Routes(h) {
		r.MethodFunc(route.Method, route.Path, route.Handler)
	}
	r.Route("/admin", func(r chi.Router) {
		for _, route := range AdminRoutes(h) {
			r.MethodFunc(route.Method, route.Path, route.Handler)
		}
	})
	return r
}

func readUpdates(t *testing.T, body io.Reader) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", sc.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestHandleGenerate_Streams(t *testing.T) {
	models := staticModels{{Name: "m", Stop: []string{"!"}, Endpoint: replay(token("Hel"), token("lo!"), done("Hello!"))}}
	router := newRouter(t, models, abort.New())

	body := `{"model":"m","messages":[{"from":"user","content":"hi"}]}`
	req := httptest.NewRequest("POST", "/conversation/c1", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != ContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := readUpdates(t, rec.Body)
	if len(lines) != 3 {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0]["type"] != "stream" || lines[0]["token"] != "Hel" {
		t.Errorf("first line = %+v", lines[0])
	}
	last := lines[2]
	if last["type"] != "finalAnswer" || last["text"] != "Hello" {
		t.Errorf("last line = %+v", last)
	}
}

func TestHandleGenerate_RequestErrors(t *testing.T) {
	models := staticModels{{Name: "m", Endpoint: replay(done("x"))}}
	router := newRouter(t, models, abort.New())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{"bad json", `{`, http.StatusBadRequest, "invalid_request"},
		{"no messages", `{"model":"m","messages":[]}`, http.StatusBadRequest, "invalid_request"},
		{"unknown model", `{"model":"nope","messages":[{"from":"user","content":"hi"}]}`, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/conversation/c1", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp struct {
				Error domain.APIError `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if string(resp.Error.Type) != tt.wantType {
				t.Errorf("error type = %s, want %s", resp.Error.Type, tt.wantType)
			}
		})
	}
}

func TestHandleGenerate_UpstreamRefused(t *testing.T) {
	refusing := ports.EndpointFunc(func(context.Context, *domain.EndpointRequest) (<-chan domain.RawTokenEvent, error) {
		return nil, domain.NewAPIError(domain.ErrorTypeRateLimit, "slow down")
	})
	router := newRouter(t, staticModels{{Name: "m", Endpoint: refusing}}, abort.New())

	req := httptest.NewRequest("POST", "/conversation/c1", strings.NewReader(`{"model":"m","messages":[{"from":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestHandleGenerate_MidStreamError(t *testing.T) {
	failing := replay(token("partial"), domain.RawTokenEvent{Error: io.ErrUnexpectedEOF})
	router := newRouter(t, staticModels{{Name: "m", Endpoint: failing}}, abort.New())

	req := httptest.NewRequest("POST", "/conversation/c1", strings.NewReader(`{"model":"m","messages":[{"from":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	lines := readUpdates(t, rec.Body)
	if len(lines) != 2 {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[1]["type"] != "error" {
		t.Errorf("last line = %+v, want error", lines[1])
	}
	for _, l := range lines {
		if l["type"] == "finalAnswer" {
			t.Error("failed generation produced a final answer")
		}
	}
}

func TestHandleGenerate_Aborted(t *testing.T) {
	aborts := abort.New()
	prompted := time.Now().Add(-time.Minute)
	_ = aborts.RequestAbort(context.Background(), "c1", time.Now())

	models := staticModels{{Name: "m", Endpoint: replay(token("a"), token("b"), done("ab"))}}
	router := newRouter(t, models, aborts)

	body := `{"model":"m","messages":[{"from":"user","content":"hi"}],"prompted_at":"` + prompted.Format(time.RFC3339Nano) + `"}`
	req := httptest.NewRequest("POST", "/conversation/c1", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	lines := readUpdates(t, rec.Body)
	if len(lines) != 1 || lines[0]["token"] != "a" {
		t.Errorf("lines = %+v, want only the first token", lines)
	}
}

func TestHandleStopGenerating(t *testing.T) {
	aborts := abort.New()
	router := newRouter(t, staticModels{}, aborts)

	req := httptest.NewRequest("POST", "/conversation/c9/stop-generating", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if _, ok := aborts.Lookup("c9"); !ok {
		t.Error("stop request not recorded")
	}
}

func TestHandleListModels(t *testing.T) {
	models := staticModels{
		{Name: "plain", DisplayName: "Plain"},
		{Name: "thinker", DisplayName: "Thinker", Multimodal: true, Reasoning: &generation.SummarizeReasoning{}},
	}
	router := newRouter(t, models, abort.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/models", nil))

	var got []ModelInfo
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []ModelInfo{
		{Name: "plain", DisplayName: "Plain"},
		{Name: "thinker", DisplayName: "Thinker", Multimodal: true, Reasoning: true},
	}
	if len(got) != len(want) {
		t.Fatalf("models = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("models[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHandleListAborts(t *testing.T) {
	aborts := abort.New()
	_ = aborts.RequestAbort(context.Background(), "c1", time.Now())
	router := newRouter(t, staticModels{}, aborts)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/aborts", nil))

	var got AbortsResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Count != 1 || len(got.Aborts) != 1 || got.Aborts[0].ConversationID != "c1" {
		t.Errorf("aborts = %+v", got)
	}
}
