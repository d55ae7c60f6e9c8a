package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
	"github.com/pvpstats/killfeed-ingest/internal/pipeline"
	"github.com/pvpstats/killfeed-ingest/internal/state"
)

// Status is a point-in-time view of the orchestrator for operators.
type Status struct {
	LastTick         domain.TickSummary `json:"last_tick"`
	Servers          []ServerStatus     `json:"servers"`
	ActiveHistorical []string           `json:"active_historical"`
}

// ServerStatus reports one server's per-pipeline resume points and
// rebuild flag.
type ServerStatus struct {
	ServerID         string    `json:"server_id"`
	LastKillfeedAt   time.Time `json:"last_killfeed_at"`
	LastGameLogAt    time.Time `json:"last_gamelog_at"`
	HistoricalActive bool      `json:"historical_active"`
}

// Status returns the last tick's counters plus each known server's
// resume point and whether a rebuild is in flight for it.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	last := o.lastSummary
	o.mu.Unlock()

	status := Status{
		LastTick:         last,
		ActiveHistorical: o.historical.Snapshot(),
	}

	targetList, err := o.resolver.Resolve()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve targets for status")
		return status
	}
	for _, t := range targetList {
		entry := ServerStatus{
			ServerID:         t.ID,
			HistoricalActive: o.historical.Contains(t.ID),
		}
		st, err := o.runner.States.Load(ctx, t.ID)
		if err == nil {
			entry.LastKillfeedAt = st.LastKillfeedAt
			entry.LastGameLogAt = st.LastGameLogAt
		} else if !errors.Is(err, state.ErrNotFound) {
			log.Warn().Err(err).Str("server_id", t.ID).Msg("Failed to load state for status")
		}
		status.Servers = append(status.Servers, entry)
	}
	return status
}

// TriggerIncremental runs one incremental kill-feed pass for a single
// server outside the schedule. lookbackHours widens the file-selection
// window past the saved resume point; zero keeps the resume point.
func (o *Orchestrator) TriggerIncremental(ctx context.Context, serverID string, lookbackHours int) (pipeline.RunResult, error) {
	target, err := o.findTarget(serverID)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	if o.historical.Contains(serverID) {
		return pipeline.RunResult{}, fmt.Errorf("server %s has a historical rebuild in progress", serverID)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.KillfeedTimeout)
	defer cancel()
	lookback := time.Duration(lookbackHours) * time.Hour
	return o.runner.RunKillfeedSince(runCtx, target, pipeline.ModeIncremental, lookback)
}

// TriggerHistoricalRebuild clears a server's state and derived data and
// re-ingests its matching file set, bounded to lookbackDays when
// non-zero. While it runs, the scheduled ticks skip the server; the
// active flag is released on every exit path so a failed rebuild never
// wedges incremental scheduling.
func (o *Orchestrator) TriggerHistoricalRebuild(ctx context.Context, serverID string, lookbackDays int) (pipeline.RunResult, error) {
	target, err := o.findTarget(serverID)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	if !o.historical.TryAcquire(serverID) {
		return pipeline.RunResult{}, fmt.Errorf("historical rebuild already running for server %s", serverID)
	}
	defer o.historical.Release(serverID)

	if lookbackDays <= 0 {
		lookbackDays = o.cfg.HistoricalDays
	}
	log.Info().Str("server_id", serverID).Int("lookback_days", lookbackDays).Msg("Historical rebuild started")
	lookback := time.Duration(lookbackDays) * 24 * time.Hour
	result, err := o.runner.RunKillfeedSince(ctx, target, pipeline.ModeHistorical, lookback)
	if err != nil {
		log.Error().Err(err).Str("server_id", serverID).Msg("Historical rebuild failed")
		return result, err
	}
	log.Info().
		Str("server_id", serverID).
		Int("files", result.Files).
		Int("events", result.Events).
		Msg("Historical rebuild complete")
	return result, nil
}

func (o *Orchestrator) findTarget(serverID string) (domain.ServerTarget, error) {
	targetList, err := o.resolver.Resolve()
	if err != nil {
		return domain.ServerTarget{}, fmt.Errorf("failed to resolve targets: %w", err)
	}
	for _, t := range targetList {
		if t.ID == serverID {
			return t, nil
		}
	}
	return domain.ServerTarget{}, fmt.Errorf("unknown server %s", serverID)
}
