package pipeline

import "sync"

// Mode selects how a server's file set is processed.
type Mode int

const (
	// ModeIncremental resumes from stored line positions.
	ModeIncremental Mode = iota
	// ModeHistorical clears state and aggregates, then re-ingests the
	// entire matching file set from line zero.
	ModeHistorical
)

func (m Mode) String() string {
	if m == ModeHistorical {
		return "historical"
	}
	return "incremental"
}

// HistoricalSet tracks servers with a rebuild in flight. The scheduler
// skips any server in the set entirely until it is released; release
// happens on completion and on any failure path.
type HistoricalSet struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewHistoricalSet creates an empty set.
func NewHistoricalSet() *HistoricalSet {
	return &HistoricalSet{active: make(map[string]bool)}
}

// TryAcquire marks a server's rebuild active. Returns false when one is
// already running for that server.
func (h *HistoricalSet) TryAcquire(serverID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active[serverID] {
		return false
	}
	h.active[serverID] = true
	return true
}

// Release removes a server from the set.
func (h *HistoricalSet) Release(serverID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, serverID)
}

// Contains reports whether a rebuild is active for a server.
func (h *HistoricalSet) Contains(serverID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active[serverID]
}

// Snapshot returns the servers currently rebuilding.
func (h *HistoricalSet) Snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.active))
	for id := range h.active {
		ids = append(ids, id)
	}
	return ids
}
