// Package sqlite stores the abort log in SQLite so stop requests reach
// generations running in other processes sharing the database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-chat/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat/internal/core/ports"
)

// Store is a SQLite implementation of ports.AbortStore.
type Store struct {
	db *sql.DB
}

var _ ports.AbortStore = (*Store)(nil)

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// connPragmas are applied by the driver to every pooled connection.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// withPragmas appends connPragmas to the DSN as _pragma parameters.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range connPragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func (s *Store) initSchema() error {
	// requested_at is unix nanoseconds so range scans compare integers.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS aborted_generations (
			conversation_id TEXT PRIMARY KEY,
			requested_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aborted_generations_requested ON aborted_generations(requested_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveAbort(ctx context.Context, conversationID string, at time.Time) error {
	query := `INSERT INTO aborted_generations (conversation_id, requested_at) VALUES (?, ?)
	          ON CONFLICT(conversation_id) DO UPDATE SET requested_at = excluded.requested_at`

	if _, err := s.db.ExecContext(ctx, query, conversationID, at.UnixNano()); err != nil {
		return fmt.Errorf("failed to save abort: %w", err)
	}
	return nil
}

func (s *Store) ListAbortsSince(ctx context.Context, since time.Time) ([]domain.AbortRecord, error) {
	query := `SELECT conversation_id, requested_at FROM aborted_generations
	          WHERE requested_at >= ?
	          ORDER BY requested_at ASC`

	rows, err := s.db.QueryContext(ctx, query, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query aborts: %w", err)
	}
	defer rows.Close()

	var records []domain.AbortRecord
	for rows.Next() {
		var rec domain.AbortRecord
		var at int64
		if err := rows.Scan(&rec.ConversationID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan abort: %w", err)
		}
		rec.RequestedAt = time.Unix(0, at).UTC()
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *Store) DeleteAbortsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM aborted_generations WHERE requested_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete aborts: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
