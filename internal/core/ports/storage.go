package ports

import (
	"context"
	"time"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
)

// AbortStore persists stop requests so they reach generations running in
// other processes.
type AbortStore interface {
	// SaveAbort records (or overwrites) the stop request for a conversation.
	SaveAbort(ctx context.Context, conversationID string, at time.Time) error

	// ListAbortsSince returns stop requests made at or after since.
	ListAbortsSince(ctx context.Context, since time.Time) ([]domain.AbortRecord, error)

	// DeleteAbortsBefore removes stop requests made before cutoff.
	DeleteAbortsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
