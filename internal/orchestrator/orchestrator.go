package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/pvpstats/killfeed-ingest/internal/config"
	"github.com/pvpstats/killfeed-ingest/internal/domain"
	"github.com/pvpstats/killfeed-ingest/internal/pipeline"
	"github.com/pvpstats/killfeed-ingest/internal/targets"
)

// emptyTicksBeforeSlowdown is how many consecutive ticks with zero
// events a pipeline tolerates before stretching its effective interval.
// Each further empty tick stretches it by one base interval, capped at
// maxSlowdownFactor; any tick with events snaps back to the base rate.
const (
	emptyTicksBeforeSlowdown = 3
	maxSlowdownFactor        = 6
)

// Orchestrator owns the scheduled ticks. Each tick resolves the target
// set, skips servers with an active rebuild, and runs the rest in
// bounded concurrent batches under per-server timeouts.
type Orchestrator struct {
	cfg        *config.Config
	resolver   targets.Resolver
	runner     *pipeline.Runner
	historical *pipeline.HistoricalSet

	scheduler gocron.Scheduler

	mu          sync.Mutex
	lastSummary domain.TickSummary
	backoff     map[string]*backoffState // keyed by pipeline name
}

type backoffState struct {
	empty   int // consecutive ticks with zero events
	skipped int // ticks skipped since the last executed one
}

// New builds an orchestrator and registers its scheduled jobs. Start
// must be called to begin ticking.
func New(cfg *config.Config, resolver targets.Resolver, runner *pipeline.Runner) (*Orchestrator, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	o := &Orchestrator{
		cfg:        cfg,
		resolver:   resolver,
		runner:     runner,
		historical: pipeline.NewHistoricalSet(),
		scheduler:  s,
		backoff:    make(map[string]*backoffState),
	}

	jobs := []struct {
		name     string
		interval time.Duration
		task     func(context.Context)
	}{
		{"killfeed", cfg.KillfeedInterval, o.runKillfeedTick},
		{"gamelog", cfg.GameLogInterval, o.runGameLogTick},
	}
	for _, j := range jobs {
		_, err := s.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.task, context.Background()),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s job: %w", j.name, err)
		}
	}

	return o, nil
}

// Start begins executing the scheduled ticks.
func (o *Orchestrator) Start() {
	o.scheduler.Start()
	log.Info().
		Dur("killfeed_interval", o.cfg.KillfeedInterval).
		Dur("gamelog_interval", o.cfg.GameLogInterval).
		Msg("Orchestrator started")
}

// Stop shuts the scheduler down and waits for running jobs.
func (o *Orchestrator) Stop() error {
	log.Info().Msg("Stopping orchestrator")
	return o.scheduler.Shutdown()
}

func (o *Orchestrator) runKillfeedTick(ctx context.Context) {
	o.runTick(ctx, "killfeed", o.cfg.KillfeedTimeout, func(ctx context.Context, target domain.ServerTarget) (pipeline.RunResult, error) {
		return o.runner.RunKillfeed(ctx, target, pipeline.ModeIncremental)
	})
}

func (o *Orchestrator) runGameLogTick(ctx context.Context) {
	o.runTick(ctx, "gamelog", o.cfg.GameLogTimeout, func(ctx context.Context, target domain.ServerTarget) (pipeline.RunResult, error) {
		return o.runner.RunGameLog(ctx, target)
	})
}

type serverRun func(ctx context.Context, target domain.ServerTarget) (pipeline.RunResult, error)

// runTick executes one scheduled pass over all servers.
func (o *Orchestrator) runTick(ctx context.Context, name string, perServerTimeout time.Duration, run serverRun) {
	if o.shouldSkipForBackoff(name) {
		log.Debug().Str("pipeline", name).Msg("Skipping tick after consecutive empty passes")
		return
	}
	if skip, allocMB := o.memoryPressure(); skip {
		log.Warn().
			Str("pipeline", name).
			Int("alloc_mb", allocMB).
			Int("ceiling_mb", o.cfg.MemoryCeilingMB).
			Msg("Memory ceiling exceeded, skipping tick")
		return
	}

	tracer := otel.Tracer("killfeed-ingest/orchestrator")
	ctx, span := tracer.Start(ctx, name+".tick")
	defer span.End()

	started := time.Now()
	deadline := started.Add(o.cfg.TickCeiling)

	targetList, err := o.resolver.Resolve()
	if err != nil {
		log.Error().Err(err).Str("pipeline", name).Msg("Failed to resolve targets, skipping tick")
		return
	}

	summary := domain.TickSummary{
		StartedAt:    started,
		ServersTotal: len(targetList),
	}

	var (
		summaryMu sync.Mutex
		g         errgroup.Group
	)
	g.SetLimit(o.cfg.ServerBatchSize)

	for _, target := range targetList {
		if time.Now().After(deadline) {
			// Ceiling reached: in-flight servers finish, no new ones start.
			log.Warn().
				Str("pipeline", name).
				Dur("ceiling", o.cfg.TickCeiling).
				Msg("Tick ceiling reached, deferring remaining servers")
			summaryMu.Lock()
			summary.ServersSkipped++
			summaryMu.Unlock()
			continue
		}
		if o.historical.Contains(target.ID) {
			summaryMu.Lock()
			summary.ServersSkipped++
			summaryMu.Unlock()
			continue
		}

		g.Go(func() error {
			// SetLimit can hold this slot open well past the ceiling, so
			// the deadline is checked again once the slot is granted.
			if time.Now().After(deadline) {
				summaryMu.Lock()
				summary.ServersSkipped++
				summaryMu.Unlock()
				return nil
			}

			runCtx, cancel := context.WithTimeout(ctx, perServerTimeout)
			defer cancel()

			result, err := run(runCtx, target)
			summaryMu.Lock()
			defer summaryMu.Unlock()
			if err != nil {
				summary.ServersFailed++
				log.Error().
					Err(err).
					Str("pipeline", name).
					Str("server_id", target.ID).
					Msg("Server run failed")
				return nil // one server's failure never stops the tick
			}
			summary.FilesProcessed += result.Files
			summary.EventsProcessed += result.Events
			summary.EventsDropped += result.Dropped
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("servers.total", summary.ServersTotal),
		attribute.Int("servers.skipped", summary.ServersSkipped),
		attribute.Int("servers.failed", summary.ServersFailed),
		attribute.Int("files.processed", summary.FilesProcessed),
		attribute.Int("events.processed", summary.EventsProcessed),
	)

	o.recordTick(name, summary)

	log.Info().
		Str("pipeline", name).
		Int("servers", summary.ServersTotal).
		Int("skipped", summary.ServersSkipped).
		Int("failed", summary.ServersFailed).
		Int("files", summary.FilesProcessed).
		Int("events", summary.EventsProcessed).
		Int("dropped", summary.EventsDropped).
		Dur("duration", summary.Duration).
		Msg("Tick complete")
}

// shouldSkipForBackoff stretches the effective tick interval for a
// pipeline that keeps coming back empty: one extra base interval per
// empty tick past the threshold, capped at maxSlowdownFactor.
func (o *Orchestrator) shouldSkipForBackoff(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := o.backoffFor(name)
	if b.empty < emptyTicksBeforeSlowdown {
		return false
	}
	factor := b.empty - emptyTicksBeforeSlowdown + 2
	if factor > maxSlowdownFactor {
		factor = maxSlowdownFactor
	}
	if b.skipped < factor-1 {
		b.skipped++
		return true
	}
	b.skipped = 0
	return false
}

func (o *Orchestrator) recordTick(name string, summary domain.TickSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := o.backoffFor(name)
	if summary.EventsProcessed == 0 {
		b.empty++
	} else {
		b.empty = 0
		b.skipped = 0
	}
	o.lastSummary = summary
}

// backoffFor returns the pipeline's backoff state. Callers hold mu.
func (o *Orchestrator) backoffFor(name string) *backoffState {
	b, ok := o.backoff[name]
	if !ok {
		b = &backoffState{}
		o.backoff[name] = b
	}
	return b
}

// memoryPressure reports whether the heap exceeds the configured
// ceiling. A zero ceiling disables the guard.
func (o *Orchestrator) memoryPressure() (bool, int) {
	if o.cfg.MemoryCeilingMB <= 0 {
		return false, 0
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	allocMB := int(m.Alloc / 1024 / 1024)
	return allocMB > o.cfg.MemoryCeilingMB, allocMB
}
