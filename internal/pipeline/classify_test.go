package pipeline

import (
	"testing"
	"time"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.NormalizedEvent
		want domain.EventType
	}{
		{
			name: "distinct players is a kill",
			ev:   domain.NormalizedEvent{ActorID: "100", TargetID: "200"},
			want: domain.EventKill,
		},
		{
			name: "matching ids is a suicide",
			ev:   domain.NormalizedEvent{ActorID: "300", TargetID: "300"},
			want: domain.EventSuicide,
		},
		{
			name: "matching names with empty ids is a suicide",
			ev:   domain.NormalizedEvent{ActorName: "P", TargetName: "P"},
			want: domain.EventSuicide,
		},
		{
			name: "connection passes through",
			ev:   domain.NormalizedEvent{Type: domain.EventConnection},
			want: domain.EventConnection,
		},
		{
			name: "mission passes through",
			ev:   domain.NormalizedEvent{Type: domain.EventMission},
			want: domain.EventMission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(&tt.ev); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSplitBatches(t *testing.T) {
	events := make([]domain.NormalizedEvent, 250)

	batches := SplitBatches(events, 100)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 100 || len(batches[1]) != 100 || len(batches[2]) != 50 {
		t.Errorf("unexpected batch sizes: %d %d %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}

	if got := SplitBatches(nil, 100); got != nil {
		t.Errorf("expected no batches for no events, got %d", len(got))
	}
}

func TestDeduper(t *testing.T) {
	ts := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)
	ev := func(actor string) domain.NormalizedEvent {
		return domain.NormalizedEvent{
			ServerID:  "srv-1",
			ActorID:   actor,
			TargetID:  "200",
			Weapon:    "AK47",
			Timestamp: ts,
		}
	}

	d := NewDeduper()
	first := d.Filter([]domain.NormalizedEvent{ev("100"), ev("101")})
	if len(first) != 2 {
		t.Fatalf("expected 2 events on first pass, got %d", len(first))
	}

	// A re-read of the same file from offset zero within the run.
	second := d.Filter([]domain.NormalizedEvent{ev("100"), ev("102")})
	if len(second) != 1 || second[0].ActorID != "102" {
		t.Fatalf("expected only the new event to survive, got %+v", second)
	}
}

func TestAggregateDeltas(t *testing.T) {
	ts := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)
	events := []domain.NormalizedEvent{
		{Type: domain.EventKill, ActorID: "a", ActorName: "A", TargetID: "b", TargetName: "B", Timestamp: ts},
		{Type: domain.EventKill, ActorID: "a", ActorName: "A", TargetID: "c", TargetName: "C", Timestamp: ts.Add(time.Minute)},
		{Type: domain.EventSuicide, ActorID: "b", ActorName: "B", TargetID: "b", TargetName: "B", Timestamp: ts},
		{Type: domain.EventConnection, ActorName: "D"},
	}

	deltas := AggregateDeltas(events)
	byID := make(map[string]domain.PlayerAggregateDelta)
	for _, d := range deltas {
		byID[d.PlayerID] = d
	}

	if len(byID) != 3 {
		t.Fatalf("expected 3 players, got %d", len(byID))
	}
	if a := byID["a"]; a.Kills != 2 || a.Deaths != 0 {
		t.Errorf("player a: expected 2 kills 0 deaths, got %+v", a)
	}
	if !byID["a"].LastSeen.Equal(ts.Add(time.Minute)) {
		t.Errorf("player a: expected last seen to track the newest event")
	}
	if b := byID["b"]; b.Deaths != 2 || b.Suicides != 1 {
		t.Errorf("player b: expected 2 deaths 1 suicide, got %+v", b)
	}
	if c := byID["c"]; c.Deaths != 1 || c.Kills != 0 {
		t.Errorf("player c: expected 1 death, got %+v", c)
	}
}
