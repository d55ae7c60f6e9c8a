package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pvpstats/killfeed-ingest/internal/config"
	"github.com/pvpstats/killfeed-ingest/internal/domain"
	"github.com/pvpstats/killfeed-ingest/internal/pipeline"
)

func newBackoffOrchestrator() *Orchestrator {
	return &Orchestrator{backoff: make(map[string]*backoffState)}
}

type staticResolver struct{ targets []domain.ServerTarget }

func (s *staticResolver) Resolve() ([]domain.ServerTarget, error) { return s.targets, nil }

func newTickOrchestrator(servers ...string) *Orchestrator {
	targets := make([]domain.ServerTarget, len(servers))
	for i, id := range servers {
		targets[i] = domain.ServerTarget{ID: id}
	}
	return &Orchestrator{
		cfg: &config.Config{
			ServerBatchSize: 2,
			TickCeiling:     time.Minute,
		},
		resolver:   &staticResolver{targets: targets},
		historical: pipeline.NewHistoricalSet(),
		backoff:    make(map[string]*backoffState),
	}
}

func TestTickSkipsServerWithActiveRebuild(t *testing.T) {
	o := newTickOrchestrator("srv-1", "srv-2", "srv-3")
	if !o.historical.TryAcquire("srv-2") {
		t.Fatal("failed to flag srv-2 for rebuild")
	}
	defer o.historical.Release("srv-2")

	var mu sync.Mutex
	ran := make(map[string]int)
	o.runTick(context.Background(), "killfeed", time.Second, func(ctx context.Context, target domain.ServerTarget) (pipeline.RunResult, error) {
		mu.Lock()
		ran[target.ID]++
		mu.Unlock()
		return pipeline.RunResult{}, nil
	})

	if ran["srv-2"] != 0 {
		t.Errorf("server with an active rebuild ran %d times, want 0", ran["srv-2"])
	}
	if ran["srv-1"] != 1 || ran["srv-3"] != 1 {
		t.Errorf("other servers must still run once, got %v", ran)
	}

	o.mu.Lock()
	skipped := o.lastSummary.ServersSkipped
	o.mu.Unlock()
	if skipped != 1 {
		t.Errorf("ServersSkipped = %d, want 1", skipped)
	}
}

func TestTickCeilingStopsQueuedServers(t *testing.T) {
	o := newTickOrchestrator("srv-1", "srv-2", "srv-3")
	o.cfg.ServerBatchSize = 1
	o.cfg.TickCeiling = 25 * time.Millisecond

	var mu sync.Mutex
	runs := 0
	o.runTick(context.Background(), "killfeed", time.Second, func(ctx context.Context, target domain.ServerTarget) (pipeline.RunResult, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		return pipeline.RunResult{}, nil
	})

	mu.Lock()
	got := runs
	mu.Unlock()
	if got != 1 {
		t.Errorf("servers past the ceiling must not start, got %d runs", got)
	}

	o.mu.Lock()
	skipped := o.lastSummary.ServersSkipped
	o.mu.Unlock()
	if skipped != 2 {
		t.Errorf("ServersSkipped = %d, want 2", skipped)
	}
}

func TestBackoffStartsAfterThreshold(t *testing.T) {
	o := newBackoffOrchestrator()

	for i := 0; i < emptyTicksBeforeSlowdown; i++ {
		if o.shouldSkipForBackoff("killfeed") {
			t.Fatalf("tick %d skipped before threshold", i)
		}
		o.recordTick("killfeed", domain.TickSummary{})
	}

	if !o.shouldSkipForBackoff("killfeed") {
		t.Error("expected skip after reaching the empty-tick threshold")
	}
	if o.shouldSkipForBackoff("killfeed") {
		t.Error("expected execution after one skipped tick at the initial factor")
	}
}

func TestBackoffStretchesWithMoreEmptyTicks(t *testing.T) {
	o := newBackoffOrchestrator()

	// Threshold plus two more empty passes: factor 4, so three skips
	// between executions.
	for i := 0; i < emptyTicksBeforeSlowdown+2; i++ {
		o.recordTick("killfeed", domain.TickSummary{})
	}

	skips := 0
	for o.shouldSkipForBackoff("killfeed") {
		skips++
		if skips > maxSlowdownFactor {
			t.Fatal("backoff never allowed a tick to run")
		}
	}
	if skips != 3 {
		t.Errorf("skips = %d, want 3", skips)
	}
}

func TestBackoffCappedAtMaxFactor(t *testing.T) {
	o := newBackoffOrchestrator()

	for i := 0; i < 50; i++ {
		o.recordTick("killfeed", domain.TickSummary{})
	}

	skips := 0
	for o.shouldSkipForBackoff("killfeed") {
		skips++
		if skips > 2*maxSlowdownFactor {
			t.Fatal("backoff never allowed a tick to run")
		}
	}
	if skips != maxSlowdownFactor-1 {
		t.Errorf("skips = %d, want %d", skips, maxSlowdownFactor-1)
	}
}

func TestBackoffResetsOnEvents(t *testing.T) {
	o := newBackoffOrchestrator()

	for i := 0; i < 10; i++ {
		o.recordTick("killfeed", domain.TickSummary{})
	}
	o.recordTick("killfeed", domain.TickSummary{EventsProcessed: 7})

	if o.shouldSkipForBackoff("killfeed") {
		t.Error("expected base rate after a tick with events")
	}
}

func TestBackoffIsPerPipeline(t *testing.T) {
	o := newBackoffOrchestrator()

	for i := 0; i < 10; i++ {
		o.recordTick("killfeed", domain.TickSummary{})
	}

	if o.shouldSkipForBackoff("gamelog") {
		t.Error("gamelog backoff affected by killfeed empty ticks")
	}
	if !o.shouldSkipForBackoff("killfeed") {
		t.Error("killfeed should be in backoff")
	}
}
