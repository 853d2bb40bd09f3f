package memory

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_ListAbortsSince(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	// Saved out of order; listing is chronological.
	saves := map[string]time.Time{
		"late":  base.Add(2 * time.Minute),
		"early": base,
		"mid":   base.Add(time.Minute),
	}
	for id, at := range saves {
		if err := store.SaveAbort(ctx, id, at); err != nil {
			t.Fatalf("SaveAbort() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		since time.Time
		want  []string
	}{
		{"all", time.Time{}, []string{"early", "mid", "late"}},
		{"inclusive bound", base.Add(time.Minute), []string{"mid", "late"}},
		{"none", base.Add(time.Hour), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.ListAbortsSince(ctx, tt.since)
			if err != nil {
				t.Fatalf("ListAbortsSince() error = %v", err)
			}
			if len(records) != len(tt.want) {
				t.Fatalf("ListAbortsSince() = %+v, want %v", records, tt.want)
			}
			for i, id := range tt.want {
				if records[i].ConversationID != id {
					t.Errorf("records[%d] = %s, want %s", i, records[i].ConversationID, id)
				}
			}
		})
	}
}

func TestMemoryStore_SaveOverwrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = store.SaveAbort(ctx, "conv-1", base)
	_ = store.SaveAbort(ctx, "conv-1", base.Add(time.Minute))

	records, _ := store.ListAbortsSince(ctx, time.Time{})
	if len(records) != 1 || !records[0].RequestedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("records = %+v", records)
	}
}

func TestMemoryStore_DeleteAbortsBefore(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = store.SaveAbort(ctx, "old", base)
	_ = store.SaveAbort(ctx, "new", base.Add(time.Hour))

	n, err := store.DeleteAbortsBefore(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteAbortsBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteAbortsBefore() = %d, want 1", n)
	}

	records, _ := store.ListAbortsSince(ctx, time.Time{})
	if len(records) != 1 || records[0].ConversationID != "new" {
		t.Errorf("records = %+v", records)
	}
}
