// Package memory is a process-local AbortStore for single-instance deployments
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
)

// Store is an in-memory implementation of ports.AbortStore.
type Store struct {
	mu     sync.RWMutex
	aborts map[string]time.Time
}

var _ ports.AbortStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		aborts: make(map[string]time.Time),
	}
}

func (s *Store) SaveAbort(ctx context.Context, conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aborts[conversationID] = at
	return nil
}

func (s *Store) ListAbortsSince(ctx context.Context, since time.Time) ([]domain.AbortRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.AbortRecord
	for id, at := range s.aborts {
		if at.Before(since) {
			continue
		}
		result = append(result, domain.AbortRecord{ConversationID: id, RequestedAt: at})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RequestedAt.Before(result[j].RequestedAt)
	})
	return result, nil
}

func (s *Store) DeleteAbortsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, at := range s.aborts {
		if at.Before(cutoff) {
			delete(s.aborts, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error {
	return nil
}
