// Package abort tracks stop requests per conversation so in-flight
// generations can notice them between events.
package abort

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
)

const (
	DefaultTTL             = 10 * time.Minute
	DefaultCapacity        = 10000
	DefaultRefreshInterval = time.Second
)

// Option configures a Registry.
type Option func(*Registry)

// WithStore makes the registry write stop requests through to store and
// pick up requests other processes wrote there.
func WithStore(store ports.AbortStore) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithTTL sets how long a stop request is remembered. It should be at least
// the longest a generation may run.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithCapacity bounds the number of remembered stop requests.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithRefreshInterval sets how often the store is polled.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.refresh = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry is the process-wide map from conversation ID to the time a stop
// was last requested. It is safe for concurrent use.
type Registry struct {
	// mu orders writers so a refresh never replaces a newer request.
	mu      sync.Mutex
	entries *expirable.LRU[string, time.Time]

	store    ports.AbortStore
	ttl      time.Duration
	capacity int
	refresh  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		refresh:  DefaultRefreshInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.entries = expirable.NewLRU[string, time.Time](r.capacity, nil, r.ttl)
	return r
}

// RequestAbort records a stop request, replacing any earlier one for the
// conversation. The in-memory entry is set even if the store write fails.
func (r *Registry) RequestAbort(ctx context.Context, conversationID string, at time.Time) error {
	r.mu.Lock()
	r.entries.Add(conversationID, at)
	r.mu.Unlock()

	r.logger.Info("stop requested",
		slog.String("conversation_id", conversationID),
		slog.Time("at", at))

	if r.store == nil {
		return nil
	}
	if err := r.store.SaveAbort(ctx, conversationID, at); err != nil {
		return fmt.Errorf("persist stop request: %w", err)
	}
	return nil
}

// Lookup returns when a stop was last requested for the conversation.
func (r *Registry) Lookup(conversationID string) (time.Time, bool) {
	return r.entries.Get(conversationID)
}

// Len reports how many stop requests are remembered. Expired entries not yet
// swept may be counted.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// Snapshot lists remembered stop requests, oldest first.
func (r *Registry) Snapshot() []domain.AbortRecord {
	var records []domain.AbortRecord
	for _, id := range r.entries.Keys() {
		if at, ok := r.entries.Peek(id); ok {
			records = append(records, domain.AbortRecord{ConversationID: id, RequestedAt: at})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].RequestedAt.Before(records[j].RequestedAt)
	})
	return records
}

// merge keeps the later of the stored and remembered times.
func (r *Registry) merge(rec domain.AbortRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries.Peek(rec.ConversationID); ok && !rec.RequestedAt.After(cur) {
		return
	}
	r.entries.Add(rec.ConversationID, rec.RequestedAt)
}

// Run polls the store until ctx is done, loading stop requests written by
// other processes and sweeping ones older than the TTL. Without a store it
// returns immediately.
func (r *Registry) Run(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	r.sweep(ctx)
	since := r.Sync(ctx, r.now().Add(-r.ttl))

	refresh := time.NewTicker(r.refresh)
	defer refresh.Stop()
	sweep := time.NewTicker(r.ttl)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh.C:
			since = r.Sync(ctx, since)
		case <-sweep.C:
			r.sweep(ctx)
		}
	}
}

// Sync loads stop requests made at or after since and returns the bound to
// use next time. The next bound overlaps by one refresh interval to cover
// writes committed while the query ran.
func (r *Registry) Sync(ctx context.Context, since time.Time) time.Time {
	if r.store == nil {
		return since
	}
	started := r.now()

	records, err := r.store.ListAbortsSince(ctx, since)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("failed to refresh stop requests", slog.String("error", err.Error()))
		}
		return since
	}
	for _, rec := range records {
		r.merge(rec)
	}
	if len(records) > 0 {
		r.logger.Debug("refreshed stop requests", slog.Int("count", len(records)))
	}

	return started.Add(-r.refresh)
}

func (r *Registry) sweep(ctx context.Context) {
	n, err := r.store.DeleteAbortsBefore(ctx, r.now().Add(-r.ttl))
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("failed to sweep stop requests", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		r.logger.Debug("swept stop requests", slog.Int64("count", n))
	}
}
