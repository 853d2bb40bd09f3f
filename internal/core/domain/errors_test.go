package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      &APIError{Type: ErrorTypeRateLimit, Code: ErrorCodeRateLimitExceeded, Message: "rate limited"},
			expected: "rate_limit (rate_limit_exceeded): rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{"invalid request", &APIError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"context length", &APIError{Type: ErrorTypeContextLength}, http.StatusBadRequest},
		{"authentication error", &APIError{Type: ErrorTypeAuthentication}, http.StatusUnauthorized},
		{"permission error", &APIError{Type: ErrorTypePermission}, http.StatusForbidden},
		{"not found error", &APIError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"rate limit error", &APIError{Type: ErrorTypeRateLimit}, http.StatusTooManyRequests},
		{"overloaded error", &APIError{Type: ErrorTypeOverloaded}, http.StatusServiceUnavailable},
		{"server error", &APIError{Type: ErrorTypeServer}, http.StatusInternalServerError},
		{"explicit status", NewAPIError(ErrorTypeServer, "x").WithStatusCode(http.StatusBadGateway), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGenerationError_Is(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := fmt.Errorf("generate: %w", NewGenerationError(ErrToolArgumentParse, "tool search", cause))

	if !errors.Is(err, ErrToolArgumentParse) {
		t.Fatalf("errors.Is(err, ErrToolArgumentParse) = false")
	}
	if errors.Is(err, ErrMalformedToolCall) {
		t.Fatalf("errors.Is(err, ErrMalformedToolCall) = true")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("errors.As failed")
	}
	want := "tool argument parse error: tool search: unexpected end of JSON input"
	if genErr.Error() != want {
		t.Errorf("Error() = %q, want %q", genErr.Error(), want)
	}
}

func TestRawTokenEvent_IsTerminal(t *testing.T) {
	text := "Hello"
	if (RawTokenEvent{}).IsTerminal() {
		t.Error("empty event reported terminal")
	}
	if !(RawTokenEvent{GeneratedText: &text}).IsTerminal() {
		t.Error("event with generated text not terminal")
	}
}
