package domain

import "time"

// EventType classifies a normalized game event.
type EventType string

const (
	EventKill       EventType = "kill"
	EventSuicide    EventType = "suicide"
	EventConnection EventType = "connection"
	EventMission    EventType = "mission"
	EventOther      EventType = "other"
)

// NormalizedEvent is the unit handed to the sink. It is produced by a
// record parser and consumed exactly once; the core never persists it.
type NormalizedEvent struct {
	Type       EventType
	ActorID    string
	ActorName  string
	TargetID   string // empty for non-combat events
	TargetName string
	Weapon     string
	Distance   float64
	Platform   string // PC, PS4, ... taken from the trailing kill-feed column
	Detail     string // mission name, connect/disconnect, raw event detail
	Timestamp  time.Time

	ServerID   string
	SourceFile string
	SourceLine int
}

// DedupKey identifies an event within a single run for duplicate
// suppression. Timestamp is truncated to the second.
func (e *NormalizedEvent) DedupKey() string {
	return e.ServerID + "|" + e.ActorID + "|" + e.TargetID + "|" + e.Weapon + "|" +
		e.Timestamp.Truncate(time.Second).Format("2006-01-02T15:04:05")
}

// PlayerAggregateDelta carries the per-player stat changes derived from
// one batch of events.
type PlayerAggregateDelta struct {
	PlayerID   string
	PlayerName string
	Kills      int64
	Deaths     int64
	Suicides   int64
	LastSeen   time.Time
}

// TickSummary aggregates counters for one scheduling tick.
type TickSummary struct {
	StartedAt       time.Time
	Duration        time.Duration
	ServersTotal    int
	ServersSkipped  int
	ServersFailed   int
	FilesProcessed  int
	EventsProcessed int
	EventsDropped   int // sink-side per-item failures
}
