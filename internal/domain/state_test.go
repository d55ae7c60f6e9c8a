package domain

import (
	"testing"
	"time"
)

func TestAdvanceLine_Monotonic(t *testing.T) {
	st := NewIngestionState("srv-1")

	st.AdvanceLine("feed.csv", 10)
	if got := st.LinePosition("feed.csv"); got != 10 {
		t.Fatalf("expected position 10, got %d", got)
	}

	st.AdvanceLine("feed.csv", 25)
	if got := st.LinePosition("feed.csv"); got != 25 {
		t.Fatalf("expected position 25, got %d", got)
	}

	// A smaller value never moves the offset backwards.
	st.AdvanceLine("feed.csv", 5)
	if got := st.LinePosition("feed.csv"); got != 25 {
		t.Errorf("offset moved backwards to %d", got)
	}
}

func TestClear(t *testing.T) {
	st := NewIngestionState("srv-1")
	st.LastKillfeedAt = time.Now()
	st.LastGameLogAt = time.Now()
	st.AdvanceLine("feed.csv", 10)
	st.MarkSeen("feed.csv")
	st.HistoricalInProgress = true

	st.Clear()

	if !st.LastKillfeedAt.IsZero() || !st.LastGameLogAt.IsZero() {
		t.Error("expected zero resume points after clear")
	}
	if st.LinePosition("feed.csv") != 0 {
		t.Error("expected line positions cleared")
	}
	if st.SeenFiles["feed.csv"] {
		t.Error("expected seen files cleared")
	}
	if st.HistoricalInProgress {
		t.Error("expected historical flag cleared")
	}
	if st.ServerID != "srv-1" {
		t.Error("server id must survive a clear")
	}
}

func TestDedupKey(t *testing.T) {
	base := NormalizedEvent{
		Type:      EventKill,
		ActorID:   "100",
		TargetID:  "200",
		Weapon:    "AK47",
		Timestamp: time.Date(2025, 5, 6, 0, 0, 0, 500_000_000, time.UTC),
		ServerID:  "srv-1",
	}

	sameSecond := base
	sameSecond.Timestamp = time.Date(2025, 5, 6, 0, 0, 0, 900_000_000, time.UTC)
	if base.DedupKey() != sameSecond.DedupKey() {
		t.Error("events within the same second must share a dedup key")
	}

	nextSecond := base
	nextSecond.Timestamp = base.Timestamp.Add(time.Second)
	if base.DedupKey() == nextSecond.DedupKey() {
		t.Error("events a second apart must not share a dedup key")
	}

	otherServer := base
	otherServer.ServerID = "srv-2"
	if base.DedupKey() == otherServer.DedupKey() {
		t.Error("dedup keys must be server-scoped")
	}
}
