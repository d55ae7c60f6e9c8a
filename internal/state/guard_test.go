package state

import (
	"testing"
	"time"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

func TestCorrectStaleTimestamp(t *testing.T) {
	now := time.Date(2025, 5, 6, 12, 0, 0, 0, time.UTC)
	cfg := DefaultGuardConfig()

	tests := []struct {
		name          string
		lastProcessed time.Time
		wantCorrected bool
		want          time.Time
	}{
		{
			name:          "ten days old is corrected to thirty days ago",
			lastProcessed: now.Add(-10 * 24 * time.Hour),
			wantCorrected: true,
			want:          now.Add(-30 * 24 * time.Hour),
		},
		{
			name:          "two days old is left untouched",
			lastProcessed: now.Add(-2 * 24 * time.Hour),
			wantCorrected: false,
		},
		{
			name:          "exactly at threshold is left untouched",
			lastProcessed: now.Add(-7 * 24 * time.Hour),
			wantCorrected: false,
		},
		{
			name:          "zero time is first contact, not stale",
			lastProcessed: time.Time{},
			wantCorrected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := domain.NewIngestionState("srv-1")
			st.LastKillfeedAt = tt.lastProcessed

			got := CorrectStaleTimestamp(st, cfg, now)
			if got != tt.wantCorrected {
				t.Fatalf("CorrectStaleTimestamp() = %v, want %v", got, tt.wantCorrected)
			}
			if tt.wantCorrected {
				if !st.LastKillfeedAt.Equal(tt.want) {
					t.Errorf("expected corrected timestamp %v, got %v", tt.want, st.LastKillfeedAt)
				}
			} else if !st.LastKillfeedAt.Equal(tt.lastProcessed) {
				t.Errorf("timestamp must not change, got %v", st.LastKillfeedAt)
			}
		})
	}
}

func TestCorrectStaleTimestamp_NotReAppliedAfterCorrection(t *testing.T) {
	now := time.Date(2025, 5, 6, 12, 0, 0, 0, time.UTC)
	cfg := DefaultGuardConfig()

	st := domain.NewIngestionState("srv-1")
	st.LastKillfeedAt = now.Add(-10 * 24 * time.Hour)

	if !CorrectStaleTimestamp(st, cfg, now) {
		t.Fatal("expected first correction to apply")
	}
	corrected := st.LastKillfeedAt

	// Thirty days ago is older than the threshold, so the guard fires
	// again, but the result is idempotent for the same now.
	CorrectStaleTimestamp(st, cfg, now)
	if !st.LastKillfeedAt.Equal(corrected) {
		t.Errorf("repeated correction changed the timestamp: %v -> %v", corrected, st.LastKillfeedAt)
	}
}
