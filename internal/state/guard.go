package state

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// GuardConfig bounds the stale-timestamp correction.
type GuardConfig struct {
	StaleAfter time.Duration // kill-feed resume point older than this is stale
	ResetTo    time.Duration // stale timestamps become now minus this
}

// DefaultGuardConfig matches the production windows: 7 days stale
// threshold, reset to a 30-day window.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		StaleAfter: 7 * 24 * time.Hour,
		ResetTo:    30 * 24 * time.Hour,
	}
}

// GuardConfigFromDays builds a guard from day-granular config values.
func GuardConfigFromDays(staleAfterDays, resetDays int) GuardConfig {
	return GuardConfig{
		StaleAfter: time.Duration(staleAfterDays) * 24 * time.Hour,
		ResetTo:    time.Duration(resetDays) * 24 * time.Hour,
	}
}

// CorrectStaleTimestamp fixes a kill-feed resume point that has drifted
// too far into the past. Without the correction, date filtering either
// reprocesses months of files on every tick or never matches anything
// again. The game-log clock needs no guard: an old stamp always passes
// the mtime gate. Returns true when the state was modified.
func CorrectStaleTimestamp(st *domain.IngestionState, cfg GuardConfig, now time.Time) bool {
	if st.LastKillfeedAt.IsZero() {
		return false // first contact, handled by the mode selector
	}
	if now.Sub(st.LastKillfeedAt) <= cfg.StaleAfter {
		return false
	}

	corrected := now.Add(-cfg.ResetTo)
	log.Warn().
		Str("server_id", st.ServerID).
		Time("stale", st.LastKillfeedAt).
		Time("corrected", corrected).
		Msg("Stale kill-feed resume point reset to bounded window")

	st.LastKillfeedAt = corrected
	return true
}
