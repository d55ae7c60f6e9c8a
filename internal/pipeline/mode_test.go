package pipeline

import (
	"sync"
	"testing"
)

func TestHistoricalSet_MutualExclusion(t *testing.T) {
	h := NewHistoricalSet()

	if !h.TryAcquire("srv-1") {
		t.Fatal("first acquire must succeed")
	}
	if h.TryAcquire("srv-1") {
		t.Fatal("second acquire for the same server must fail")
	}
	if !h.Contains("srv-1") {
		t.Error("expected srv-1 to be active")
	}
	if !h.TryAcquire("srv-2") {
		t.Error("other servers must not be blocked")
	}

	h.Release("srv-1")
	if h.Contains("srv-1") {
		t.Error("expected srv-1 released")
	}
	if !h.TryAcquire("srv-1") {
		t.Error("acquire after release must succeed")
	}
}

func TestHistoricalSet_ConcurrentAcquire(t *testing.T) {
	h := NewHistoricalSet()

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.TryAcquire("srv-1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
