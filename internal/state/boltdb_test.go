package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

func newTestStore(t *testing.T) *BoltDBStore {
	t.Helper()
	s, err := NewBoltDBStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewBoltDBStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltDBStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := domain.NewIngestionState("srv-1")
	st.LastKillfeedAt = time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)
	st.AdvanceLine("2025.05.06-00.00.00.csv", 42)
	st.MarkSeen("2025.05.06-00.00.00.csv")

	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "srv-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.LastKillfeedAt.Equal(st.LastKillfeedAt) {
		t.Errorf("expected LastKillfeedAt %v, got %v", st.LastKillfeedAt, got.LastKillfeedAt)
	}
	if got.LinePosition("2025.05.06-00.00.00.csv") != 42 {
		t.Errorf("expected line position 42, got %d", got.LinePosition("2025.05.06-00.00.00.csv"))
	}
	if !got.SeenFiles["2025.05.06-00.00.00.csv"] {
		t.Error("expected seen file to survive the round trip")
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected Save to stamp UpdatedAt")
	}
}

func TestBoltDBStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBoltDBStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, domain.NewIngestionState("srv-1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete(ctx, "srv-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "srv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBoltDBStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"srv-1", "srv-2"} {
		if err := s.Save(ctx, domain.NewIngestionState(id)); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 states, got %d", len(all))
	}
	if all["srv-2"] == nil || all["srv-2"].ServerID != "srv-2" {
		t.Errorf("unexpected listed state: %+v", all["srv-2"])
	}
}
