package domain

import "time"

// IngestionState is the per-server resume state. It is loaded at startup,
// mutated after each committed batch and persisted write-through.
type IngestionState struct {
	ServerID string `json:"server_id"`

	// LastKillfeedAt and LastGameLogAt are the per-pipeline resume
	// points. Each pipeline stamps only its own clock: the kill-feed
	// window filter and the game-log mtime gate must never read the
	// other pipeline's progress. Monotonic while in incremental mode;
	// only moved backwards by a historical reset or the stale guard.
	LastKillfeedAt time.Time `json:"last_killfeed_at"`
	LastGameLogAt  time.Time `json:"last_gamelog_at"`

	// LinePositions maps filename to the count of lines already consumed.
	// A value never decreases while in incremental mode.
	LinePositions map[string]int `json:"line_positions"`

	// SeenFiles records filenames ever selected as the newest file of a
	// day, used to detect day-boundary transitions.
	SeenFiles map[string]bool `json:"seen_files"`

	// HistoricalInProgress marks a full rebuild that was interrupted.
	HistoricalInProgress bool `json:"historical_in_progress"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewIngestionState returns a fresh state for first contact with a server.
func NewIngestionState(serverID string) *IngestionState {
	return &IngestionState{
		ServerID:      serverID,
		LinePositions: make(map[string]int),
		SeenFiles:     make(map[string]bool),
	}
}

// LinePosition returns the resume offset for a file, 0 when unseen.
func (s *IngestionState) LinePosition(file string) int {
	if s.LinePositions == nil {
		return 0
	}
	return s.LinePositions[file]
}

// AdvanceLine records the new consumed-line count for a file. Offsets only
// move forward; a smaller value is ignored.
func (s *IngestionState) AdvanceLine(file string, lines int) {
	if s.LinePositions == nil {
		s.LinePositions = make(map[string]int)
	}
	if lines > s.LinePositions[file] {
		s.LinePositions[file] = lines
	}
}

// MarkSeen records a file as having been the newest file for its day.
func (s *IngestionState) MarkSeen(file string) {
	if s.SeenFiles == nil {
		s.SeenFiles = make(map[string]bool)
	}
	s.SeenFiles[file] = true
}

// Clear wipes the state for a historical rebuild, keeping the server id.
func (s *IngestionState) Clear() {
	s.LastKillfeedAt = time.Time{}
	s.LastGameLogAt = time.Time{}
	s.LinePositions = make(map[string]int)
	s.SeenFiles = make(map[string]bool)
	s.HistoricalInProgress = false
}

// FileCandidate is an ephemeral discovery result for one remote file.
type FileCandidate struct {
	Path     string // absolute remote path
	Name     string // basename
	FileTime time.Time // parsed from the filename, zero when unparseable
	Strategy string // discovery strategy that produced it, diagnostics only
}

// RawBatch is the decoded content of one file plus the line offset at
// which parsing should resume.
type RawBatch struct {
	Candidate FileCandidate
	Content   string
	StartLine int // 0 for fresh files and historical rebuilds
}
