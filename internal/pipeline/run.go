package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
	"github.com/pvpstats/killfeed-ingest/internal/locate"
	"github.com/pvpstats/killfeed-ingest/internal/parser"
	"github.com/pvpstats/killfeed-ingest/internal/remote"
	"github.com/pvpstats/killfeed-ingest/internal/sink"
	"github.com/pvpstats/killfeed-ingest/internal/state"
)

// RunResult aggregates per-server counters for one pipeline pass.
type RunResult struct {
	Files        int
	Events       int
	Inserted     int
	Dropped      int
	FirstContact bool
}

// SessionProvider hands out a remote session per target. Satisfied by
// remote.Manager.
type SessionProvider interface {
	Session(target domain.ServerTarget) remote.Session
}

// Runner executes one server's ingestion pass. State advances only
// after the sink has accepted the corresponding events.
type Runner struct {
	Locator  *locate.Locator
	Sessions SessionProvider
	States   state.Store
	Locks    *state.KeyLocks
	Sink     sink.Sink
	Killfeed parser.Parser
	GameLog  parser.Parser

	Guard              state.GuardConfig
	BatchSize          int
	FirstContactWindow time.Duration

	now func() time.Time
}

// NewRunner wires a runner with wall-clock time.
func NewRunner(locator *locate.Locator, sessions SessionProvider, states state.Store, locks *state.KeyLocks, snk sink.Sink, cfg RunnerConfig) *Runner {
	return &Runner{
		Locator:            locator,
		Sessions:           sessions,
		States:             states,
		Locks:              locks,
		Sink:               snk,
		Killfeed:           parser.NewKillfeedParser(),
		GameLog:            parser.NewGameLogParser(),
		Guard:              cfg.Guard,
		BatchSize:          cfg.BatchSize,
		FirstContactWindow: cfg.FirstContactWindow,
		now:                time.Now,
	}
}

// RunnerConfig carries the tunables the runner needs from the
// application config.
type RunnerConfig struct {
	Guard              state.GuardConfig
	BatchSize          int
	FirstContactWindow time.Duration
}

// RunKillfeed processes a server's kill-feed files in the given mode.
func (r *Runner) RunKillfeed(ctx context.Context, target domain.ServerTarget, mode Mode) (RunResult, error) {
	return r.RunKillfeedSince(ctx, target, mode, 0)
}

// RunKillfeedSince is RunKillfeed with an explicit look-back window
// overriding the resume point for file selection. Zero means the saved
// resume point (incremental) or the full file set (historical). Line
// positions are unaffected; the window only bounds which files are
// considered.
func (r *Runner) RunKillfeedSince(ctx context.Context, target domain.ServerTarget, mode Mode, lookback time.Duration) (RunResult, error) {
	r.Locks.Lock(target.ID)
	defer r.Locks.Unlock(target.ID)

	var result RunResult

	st, firstContact := r.loadState(ctx, target.ID)
	result.FirstContact = firstContact

	switch {
	case mode == ModeHistorical:
		// Full rebuild: wipe derived data first so a crash mid-rebuild
		// leaves an obviously-empty server rather than doubled stats.
		st.Clear()
		st.HistoricalInProgress = true
		if err := r.States.Save(ctx, st); err != nil {
			return result, fmt.Errorf("failed to persist rebuild state for %s: %w", target.ID, err)
		}
		if err := r.Sink.ClearServerData(ctx, target.ID); err != nil {
			return result, fmt.Errorf("failed to clear server data for %s: %w", target.ID, err)
		}
	case firstContact:
		// A server never seen before gets a bounded look-back and a
		// one-time aggregate clear instead of the unbounded rebuild.
		if err := r.Sink.ClearServerData(ctx, target.ID); err != nil {
			return result, fmt.Errorf("failed to clear server data for %s: %w", target.ID, err)
		}
		st.LastKillfeedAt = r.now().UTC().Add(-r.FirstContactWindow)
	default:
		state.CorrectStaleTimestamp(st, r.Guard, r.now().UTC())
	}

	sess := r.Sessions.Session(target)
	candidates, err := r.Locator.Locate(ctx, sess, target, locate.KindKillfeed)
	if err != nil {
		return result, err
	}
	window := st.LastKillfeedAt
	if lookback > 0 {
		window = r.now().UTC().Add(-lookback)
	}
	if mode != ModeHistorical || lookback > 0 {
		candidates = filterByWindow(candidates, window)
	}
	if len(candidates) == 0 {
		log.Debug().Str("server_id", target.ID).Msg("No kill-feed files to process")
		return result, nil
	}

	deduper := NewDeduper()
	newest := candidates[len(candidates)-1].Name
	for _, cand := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if mode != ModeHistorical && cand.Name != newest &&
			st.SeenFiles[cand.Name] && st.LinePosition(cand.Name) > 0 {
			// Only the newest file receives appends; a superseded
			// file's recorded offset is final.
			log.Debug().
				Str("server_id", target.ID).
				Str("file", cand.Name).
				Msg("Rotated-out file already consumed, skipping")
			continue
		}
		if err := r.processFile(ctx, sess, target, st, cand, r.Killfeed, mode, deduper, &result); err != nil {
			return result, err
		}
	}

	r.trackDayBoundary(st, candidates)
	st.LastKillfeedAt = r.now().UTC()
	if mode == ModeHistorical {
		st.HistoricalInProgress = false
	}
	r.saveState(ctx, st)
	return result, nil
}

// RunGameLog processes the server's structured log. The log is a single
// append-only file; a modification-time gate skips the download when
// nothing was written since the last pass.
func (r *Runner) RunGameLog(ctx context.Context, target domain.ServerTarget) (RunResult, error) {
	r.Locks.Lock(target.ID)
	defer r.Locks.Unlock(target.ID)

	var result RunResult

	st, firstContact := r.loadState(ctx, target.ID)
	result.FirstContact = firstContact

	sess := r.Sessions.Session(target)
	candidates, err := r.Locator.Locate(ctx, sess, target, locate.KindGameLog)
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		return result, nil
	}

	deduper := NewDeduper()
	for _, cand := range candidates {
		stat, err := sess.Stat(ctx, cand.Path)
		if err == nil && !st.LastGameLogAt.IsZero() && !stat.ModTime.After(st.LastGameLogAt) {
			log.Debug().
				Str("server_id", target.ID).
				Str("file", cand.Path).
				Time("mtime", stat.ModTime).
				Msg("Log unchanged since last pass, skipping")
			continue
		}
		if err := r.processFile(ctx, sess, target, st, cand, r.GameLog, ModeIncremental, deduper, &result); err != nil {
			return result, err
		}
	}

	st.LastGameLogAt = r.now().UTC()
	r.saveState(ctx, st)
	return result, nil
}

// loadState loads or initializes per-server state. The bool result is
// true on first contact. Unreadable state degrades to first contact so
// a corrupt store entry never takes the server out of rotation.
func (r *Runner) loadState(ctx context.Context, serverID string) (*domain.IngestionState, bool) {
	st, err := r.States.Load(ctx, serverID)
	if errors.Is(err, state.ErrNotFound) {
		return domain.NewIngestionState(serverID), true
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("server_id", serverID).
			Msg("State unreadable, treating server as first contact")
		return domain.NewIngestionState(serverID), true
	}
	return st, false
}

// processFile reads, parses and delivers one file, advancing its line
// position only after the sink accepted the events.
func (r *Runner) processFile(
	ctx context.Context,
	sess remote.Session,
	target domain.ServerTarget,
	st *domain.IngestionState,
	cand domain.FileCandidate,
	p parser.Parser,
	mode Mode,
	deduper *Deduper,
	result *RunResult,
) error {
	startLine := 0
	if mode != ModeHistorical {
		startLine = st.LinePosition(cand.Name)
	}

	content, err := sess.ReadFile(ctx, cand.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cand.Path, err)
	}

	events, totalLines, err := p.Parse(target.ID, domain.RawBatch{
		Candidate: cand,
		Content:   string(content),
		StartLine: startLine,
	})
	if errors.Is(err, parser.ErrBadStructure) {
		log.Warn().
			Str("server_id", target.ID).
			Str("file", cand.Path).
			Msg("File failed structural validation, skipped without advancing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", cand.Path, err)
	}

	for i := range events {
		events[i].Type = Classify(&events[i])
	}

	result.Files++
	result.Events += len(events)

	events = deduper.Filter(events)
	inserted := 0
	for _, batch := range SplitBatches(events, r.BatchSize) {
		n, errs := r.Sink.InsertBatch(ctx, batch)
		inserted += n
		if n == 0 && len(errs) > 0 {
			// Nothing landed: leave the offset untouched so the next tick
			// retries the same lines.
			result.Dropped += len(batch)
			return fmt.Errorf("sink rejected batch for %s: %w", cand.Path, errs[0])
		}
		if len(errs) > 0 {
			result.Dropped += len(batch) - n
			log.Warn().
				Str("server_id", target.ID).
				Str("file", cand.Path).
				Int("inserted", n).
				Int("failed", len(errs)).
				Msg("Partial batch delivery")
		}
	}
	result.Inserted += inserted

	st.AdvanceLine(cand.Name, totalLines)
	r.saveState(ctx, st)

	for _, delta := range AggregateDeltas(events) {
		if err := r.Sink.UpsertPlayerAggregate(ctx, target.ID, delta); err != nil {
			log.Warn().
				Err(err).
				Str("server_id", target.ID).
				Str("player_id", delta.PlayerID).
				Msg("Failed to upsert player aggregate")
		}
	}

	log.Info().
		Str("server_id", target.ID).
		Str("file", cand.Name).
		Str("strategy", cand.Strategy).
		Int("events", len(events)).
		Int("inserted", inserted).
		Int("line_position", totalLines).
		Msg("File processed")
	return nil
}

// saveState is write-through and best-effort: a persistence failure is
// logged but never rolls back events already delivered to the sink.
func (r *Runner) saveState(ctx context.Context, st *domain.IngestionState) {
	if err := r.States.Save(ctx, st); err != nil {
		log.Error().
			Err(err).
			Str("server_id", st.ServerID).
			Msg("Failed to persist ingestion state")
	}
}

// filterByWindow keeps files plausibly containing events after the
// resume point. Kill-feed files rotate hourly, so a file stamped within
// the hour before the resume point can still hold newer lines. Files
// without a parseable timestamp are always kept.
func filterByWindow(candidates []domain.FileCandidate, since time.Time) []domain.FileCandidate {
	if since.IsZero() {
		return candidates
	}
	cutoff := since.Add(-time.Hour)
	kept := candidates[:0]
	for _, c := range candidates {
		if c.FileTime.IsZero() || !c.FileTime.Before(cutoff) {
			kept = append(kept, c)
		}
	}
	return kept
}

// trackDayBoundary records the newest candidate so the next tick can
// tell a fresh day's file from a re-listed old one.
func (r *Runner) trackDayBoundary(st *domain.IngestionState, candidates []domain.FileCandidate) {
	if len(candidates) == 0 {
		return
	}
	newest := candidates[len(candidates)-1]
	if !st.SeenFiles[newest.Name] {
		st.MarkSeen(newest.Name)
		if len(st.SeenFiles) > 1 {
			log.Debug().
				Str("server_id", st.ServerID).
				Str("file", newest.Name).
				Msg("New feed file observed")
		}
	}
}
