package audit

import (
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/clintrovert/tpsync/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestRecordAndGet(t *testing.T) {
	store := newTestStore(t)

	result := &types.SyncResult{
		Success:   false,
		Message:   "rebase stopped on conflicts",
		Conflicts: []string{"plans/20251-platform.md", "plans/20251-ops.md"},
		APICalls:  []types.APICall{{Operation: "update", Entity: "objective", ID: 302}},
	}
	if err := store.Record("pull", "2025.1", "Platform", result); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rec, err := store.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Operation != "pull" || rec.Release != "2025.1" || rec.Team != "Platform" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Success {
		t.Error("Success should be false")
	}
	if rec.APICallCount != 1 {
		t.Errorf("APICallCount = %d, want 1", rec.APICallCount)
	}
	conflicts := strings.Split(rec.Conflicts, "\n")
	if len(conflicts) != 2 || conflicts[0] != "plans/20251-platform.md" {
		t.Errorf("Conflicts = %q", rec.Conflicts)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for _, op := range []string{"init", "pull", "push"} {
		result := &types.SyncResult{Success: true, Message: op + " ok"}
		if err := store.Record(op, "2025.1", "Platform", result); err != nil {
			t.Fatalf("Record(%s): %v", op, err)
		}
	}

	records, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Operation != "push" || records[1].Operation != "pull" {
		t.Errorf("order = [%s %s], want [push pull]", records[0].Operation, records[1].Operation)
	}
}

func TestGetMissingRecord(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(42); err == nil {
		t.Error("expected error for missing record")
	}
}
