package pipeline

import (
	"time"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// Classify recomputes the category of an event from its fields. The
// pipeline applies it to every parsed event, so the actor-equals-target
// suicide rule holds no matter which parser produced the event.
func Classify(ev *domain.NormalizedEvent) domain.EventType {
	switch ev.Type {
	case domain.EventConnection, domain.EventMission, domain.EventOther:
		return ev.Type
	}
	if ev.ActorID != "" && ev.ActorID == ev.TargetID {
		return domain.EventSuicide
	}
	if ev.ActorName != "" && ev.ActorName == ev.TargetName {
		return domain.EventSuicide
	}
	return domain.EventKill
}

// Deduper suppresses duplicate events within one run. It guards against
// a file re-read from offset zero inside a single tick, not across
// ticks; the set is never persisted.
type Deduper struct {
	seen map[string]bool
}

// NewDeduper creates an empty per-run dedup set.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]bool)}
}

// Filter returns the events not yet delivered in this run and records
// them as delivered.
func (d *Deduper) Filter(events []domain.NormalizedEvent) []domain.NormalizedEvent {
	kept := events[:0]
	for _, ev := range events {
		key := ev.DedupKey()
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		kept = append(kept, ev)
	}
	return kept
}

// SplitBatches partitions events into insert-sized chunks, preserving
// order.
func SplitBatches(events []domain.NormalizedEvent, size int) [][]domain.NormalizedEvent {
	if size <= 0 {
		size = 100
	}
	var batches [][]domain.NormalizedEvent
	for len(events) > size {
		batches = append(batches, events[:size])
		events = events[size:]
	}
	if len(events) > 0 {
		batches = append(batches, events)
	}
	return batches
}

// AggregateDeltas folds combat events into per-player stat deltas.
// Connection and mission events carry no player stats.
func AggregateDeltas(events []domain.NormalizedEvent) []domain.PlayerAggregateDelta {
	byPlayer := make(map[string]*domain.PlayerAggregateDelta)

	touch := func(id, name string, ts time.Time) *domain.PlayerAggregateDelta {
		d, ok := byPlayer[id]
		if !ok {
			d = &domain.PlayerAggregateDelta{PlayerID: id, PlayerName: name}
			byPlayer[id] = d
		}
		if d.PlayerName == "" {
			d.PlayerName = name
		}
		if ts.After(d.LastSeen) {
			d.LastSeen = ts
		}
		return d
	}

	for _, ev := range events {
		switch ev.Type {
		case domain.EventKill:
			if ev.ActorID != "" {
				touch(ev.ActorID, ev.ActorName, ev.Timestamp).Kills++
			}
			if ev.TargetID != "" {
				touch(ev.TargetID, ev.TargetName, ev.Timestamp).Deaths++
			}
		case domain.EventSuicide:
			if ev.ActorID != "" {
				d := touch(ev.ActorID, ev.ActorName, ev.Timestamp)
				d.Suicides++
				d.Deaths++
			}
		}
	}

	deltas := make([]domain.PlayerAggregateDelta, 0, len(byPlayer))
	for _, d := range byPlayer {
		deltas = append(deltas, *d)
	}
	return deltas
}
