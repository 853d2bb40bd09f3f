package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream options not set: %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
}

func TestClient_StreamChatCompletion(t *testing.T) {
	srv := sseServer(t,
		`data: {"id":"1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`: keep-alive`,
		`data: {"id":"1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		`data: {"id":"1","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7,"prompt_tokens_details":{"cached_tokens":3}}}`,
		`data: [DONE]`,
	)
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	stream, err := c.StreamChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("StreamChatCompletion() error = %v", err)
	}

	var content string
	var usage *Usage
	for res := range stream {
		if res.Err != nil {
			t.Fatalf("stream error: %v", res.Err)
		}
		if len(res.Chunk.Choices) > 0 {
			content += res.Chunk.Choices[0].Delta.Content
		}
		if res.Chunk.Usage != nil {
			usage = res.Chunk.Usage
		}
	}

	if content != "Hello" {
		t.Errorf("content = %q, want Hello", content)
	}
	if usage == nil || usage.PromptTokensDetails == nil || usage.PromptTokensDetails.CachedTokens != 3 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestClient_StreamBadChunk(t *testing.T) {
	srv := sseServer(t, `data: {not json`)
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	stream, err := c.StreamChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("StreamChatCompletion() error = %v", err)
	}

	var gotErr error
	for res := range stream {
		if res.Err != nil {
			gotErr = res.Err
		}
	}
	if gotErr == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"The model does not exist","type":"invalid_request_error","code":"model_not_found"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *domain.APIError", err)
	}
	if apiErr.Type != domain.ErrorTypeNotFound || apiErr.Code != domain.ErrorCodeModelNotFound {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_CreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Errorf("non-streaming request sent stream=true")
		}
		w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}
	if got := resp.Choices[0].Message.Text(); got != "hi" {
		t.Errorf("Text() = %q, want hi", got)
	}
}

func TestChatCompletionMessage_Text(t *testing.T) {
	tests := []struct {
		name string
		msg  ChatCompletionMessage
		want string
	}{
		{"string", ChatCompletionMessage{Content: "plain"}, "plain"},
		{"parts", ChatCompletionMessage{Content: []any{
			map[string]any{"type": "text", "text": "a"},
			map[string]any{"type": "image_url"},
			map[string]any{"type": "text", "text": "b"},
		}}, "ab"},
		{"nil", ChatCompletionMessage{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}
