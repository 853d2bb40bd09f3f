package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an upstream API error.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypePermission     ErrorType = "permission"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeOverloaded     ErrorType = "overloaded"
	ErrorTypeServer         ErrorType = "server"
	ErrorTypeContextLength  ErrorType = "context_length"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeContextLengthExceeded ErrorCode = "context_length_exceeded"
	ErrorCodeRateLimitExceeded     ErrorCode = "rate_limit_exceeded"
	ErrorCodeInvalidAPIKey         ErrorCode = "invalid_api_key"
	ErrorCodeModelNotFound         ErrorCode = "model_not_found"
)

// APIError is an error reported by an upstream model API, normalized so the
// HTTP layer can pick a status code.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`

	// StatusCode overrides the status derived from Type when set.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest, ErrorTypeContextLength:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{Type: errType, Message: message}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// Generation failure kinds. Use errors.Is against these.
var (
	// ErrMalformedToolCall: a tool call was announced without a function name.
	ErrMalformedToolCall = errors.New("malformed tool call")

	// ErrToolArgumentParse: accumulated tool arguments are not a JSON object.
	ErrToolArgumentParse = errors.New("tool argument parse error")

	// ErrSummarization: the delegated summary generation failed. Recovered locally.
	ErrSummarization = errors.New("summarization failure")

	// ErrBackgroundSummary: a periodic reasoning summary failed. Ignored.
	ErrBackgroundSummary = errors.New("background summary failure")

	// ErrUpstreamStream: the endpoint's token stream failed.
	ErrUpstreamStream = errors.New("upstream stream failure")

	// ErrGenerationAborted: a stop request halted the generation.
	ErrGenerationAborted = errors.New("generation aborted")
)

// GenerationError carries one of the generation failure kinds plus context.
type GenerationError struct {
	Kind    error
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Is matches the failure kind.
func (e *GenerationError) Is(target error) bool {
	return e.Kind == target
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError builds a GenerationError of the given kind.
func NewGenerationError(kind error, message string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Message: message, Err: err}
}
