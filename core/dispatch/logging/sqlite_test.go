package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStorePersistQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now()
	appendAll(t, store,
		LogRecord{Timestamp: now, Kind: KindAssignment, Vehicle: "v1", Order: "o1", Phase: "assign-free-orders", Costs: 2500, Route: []string{"p1", "p2"}},
		LogRecord{Timestamp: now.Add(time.Second), Kind: KindWithdrawal, Vehicle: "v2", Order: "o2", Reason: "door failed"},
		LogRecord{Timestamp: now.Add(2 * time.Second), Kind: KindFinished, Vehicle: "v1", Order: "o1"},
	)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	out, err := store.Query(ctx, LogQuery{Vehicle: "v1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	first := out[0]
	if first.Phase != "assign-free-orders" || first.Costs != 2500 || len(first.Route) != 2 || first.Route[1] != "p2" {
		t.Fatalf("fields not persisted: %+v", first)
	}
	if !first.Timestamp.Equal(now) {
		t.Fatalf("timestamp %v != %v", first.Timestamp, now)
	}

	out, _ = store.Query(ctx, LogQuery{Kind: KindWithdrawal, Start: now.Add(500 * time.Millisecond)})
	if len(out) != 1 || out[0].Reason != "door failed" {
		t.Fatalf("unexpected records %+v", out)
	}

	out, _ = store.Query(ctx, LogQuery{Limit: 2})
	if len(out) != 2 || out[0].Order != "o2" || out[1].Kind != KindFinished {
		t.Fatalf("expected two newest in order, got %+v", out)
	}
}
