package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// Endpoint produces a token stream for one generation request.
// The channel MUST be closed by the endpoint when done. An in-stream failure is
// delivered as a final event with Error set. Implementations must stop sending
// once ctx is cancelled so abandoned streams do not leak goroutines.
type Endpoint interface {
	Generate(ctx context.Context, req *domain.EndpointRequest) (<-chan domain.RawTokenEvent, error)
}

// EndpointFunc adapts a function to the Endpoint interface.
type EndpointFunc func(ctx context.Context, req *domain.EndpointRequest) (<-chan domain.RawTokenEvent, error)

func (f EndpointFunc) Generate(ctx context.Context, req *domain.EndpointRequest) (<-chan domain.RawTokenEvent, error) {
	return f(ctx, req)
}
