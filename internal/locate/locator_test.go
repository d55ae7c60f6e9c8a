package locate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
	"github.com/pvpstats/killfeed-ingest/internal/remote"
)

// fakeSession serves a fixed remote tree.
type fakeSession struct {
	dirs  map[string][]string
	files map[string]bool
	lists []string // dirs listed, in order
}

func (f *fakeSession) Exists(ctx context.Context, path string) (bool, error) {
	if f.files[path] {
		return true, nil
	}
	_, ok := f.dirs[path]
	return ok, nil
}

func (f *fakeSession) ListDir(ctx context.Context, dir string) ([]string, error) {
	f.lists = append(f.lists, dir)
	names, ok := f.dirs[dir]
	if !ok {
		return nil, fmt.Errorf("no such directory: %s", dir)
	}
	return names, nil
}

func (f *fakeSession) IsDir(ctx context.Context, path string) (bool, error) {
	_, ok := f.dirs[path]
	return ok, nil
}

func (f *fakeSession) Stat(ctx context.Context, path string) (remote.FileStat, error) {
	return remote.FileStat{}, nil
}

func (f *fakeSession) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeSession) Close() error { return nil }

func target() domain.ServerTarget {
	return domain.ServerTarget{
		ID:        "srv-1",
		Host:      "198.51.100.7",
		Hostname:  "host7",
		NumericID: "1234",
	}
}

func TestLocate_ExplicitPathWins(t *testing.T) {
	sess := &fakeSession{
		dirs: map[string][]string{
			"/custom/feed":                      {"2025.05.06-00.00.00.csv"},
			"/host7_1234/actual1/deathlogs":     {},
			"/host7_1234/actual1/deathlogs/map": {"2025.05.05-00.00.00.csv"},
		},
		files: map[string]bool{
			"/custom/feed/2025.05.06-00.00.00.csv": true,
		},
	}

	l := NewLocator(100)
	tgt := target()
	tgt.ExplicitPath = "/custom/feed"

	got, err := l.Locate(context.Background(), sess, tgt, KindKillfeed)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Path != "/custom/feed/2025.05.06-00.00.00.csv" {
		t.Errorf("unexpected candidate path %s", got[0].Path)
	}
	if got[0].Strategy != "explicit" {
		t.Errorf("expected explicit strategy, got %s", got[0].Strategy)
	}
}

func TestLocate_CapKeepsNewestFiles(t *testing.T) {
	sess := &fakeSession{
		dirs: map[string][]string{
			"/custom/feed": {
				"2025.05.04-00.00.00.csv",
				"2025.05.05-00.00.00.csv",
				"2025.05.06-00.00.00.csv",
			},
		},
	}

	l := NewLocator(2)
	tgt := target()
	tgt.ExplicitPath = "/custom/feed"

	got, err := l.Locate(context.Background(), sess, tgt, KindKillfeed)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected cap of 2 candidates, got %d", len(got))
	}
	if got[0].Name != "2025.05.05-00.00.00.csv" || got[1].Name != "2025.05.06-00.00.00.csv" {
		t.Errorf("cap must drop the oldest file, kept %s and %s", got[0].Name, got[1].Name)
	}
}

func TestLocate_CanonicalMapSubdirs(t *testing.T) {
	sess := &fakeSession{
		dirs: map[string][]string{
			"/host7_1234/actual1/deathlogs":         {"world_0"},
			"/host7_1234/actual1/deathlogs/world_0": {"2025.05.05-00.00.00.csv", "2025.05.06-00.00.00.csv"},
		},
		files: map[string]bool{},
	}

	l := NewLocator(100)
	got, err := l.Locate(context.Background(), sess, target(), KindKillfeed)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Strategy != "canonical" {
		t.Errorf("expected canonical strategy, got %s", got[0].Strategy)
	}
	// Chronological order by embedded timestamp.
	if !got[0].FileTime.Before(got[1].FileTime) {
		t.Errorf("candidates not in chronological order: %v then %v", got[0].FileTime, got[1].FileTime)
	}
}

func TestLocate_AlternateRootFallback(t *testing.T) {
	sess := &fakeSession{
		dirs: map[string][]string{
			"/host7_1234/deathlogs": {"2025.05.06-00.00.00.csv"},
		},
		files: map[string]bool{},
	}

	l := NewLocator(100)
	got, err := l.Locate(context.Background(), sess, target(), KindKillfeed)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Strategy != "alternate" {
		t.Errorf("expected alternate strategy, got %s", got[0].Strategy)
	}
}

func TestLocate_RecursiveFallback(t *testing.T) {
	sess := &fakeSession{
		dirs: map[string][]string{
			"/":                     {"somewhere"},
			"/somewhere":            {"deeper"},
			"/somewhere/deeper":     {"2025.05.06-00.00.00.csv"},
		},
		files: map[string]bool{},
	}

	l := NewLocator(100)
	got, err := l.Locate(context.Background(), sess, target(), KindKillfeed)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Strategy != "recursive" {
		t.Errorf("expected recursive strategy, got %s", got[0].Strategy)
	}
}

func TestLocate_CacheShortCircuits(t *testing.T) {
	sess := &fakeSession{
		dirs: map[string][]string{
			"/host7_1234/actual1/deathlogs":         {"world_0"},
			"/host7_1234/actual1/deathlogs/world_0": {"2025.05.06-00.00.00.csv"},
		},
		files: map[string]bool{},
	}

	l := NewLocator(100)
	if _, err := l.Locate(context.Background(), sess, target(), KindKillfeed); err != nil {
		t.Fatalf("first Locate() error = %v", err)
	}

	sess.lists = nil
	got, err := l.Locate(context.Background(), sess, target(), KindKillfeed)
	if err != nil {
		t.Fatalf("second Locate() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Strategy != "cached" {
		t.Errorf("expected cached strategy, got %s", got[0].Strategy)
	}
	if len(sess.lists) != 1 || sess.lists[0] != "/host7_1234/actual1/deathlogs/world_0" {
		t.Errorf("cache must relist only the known directory, listed %v", sess.lists)
	}
}

func TestLocate_GameLog(t *testing.T) {
	sess := &fakeSession{
		dirs: map[string][]string{
			"/host7_1234/Logs": {"Deadside.log", "backup.log"},
		},
		files: map[string]bool{},
	}

	l := NewLocator(100)
	got, err := l.Locate(context.Background(), sess, target(), KindGameLog)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != GameLogName {
		t.Fatalf("expected exactly the game log, got %+v", got)
	}
}

func TestMatchFiles_TierOrder(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  []string
	}{
		{
			name:  "strict matches exclude loose ones",
			names: []string{"2025.05.06-00.00.00.csv", "map_2025.05.06-01.00.00.csv", "notes.txt"},
			want:  []string{"2025.05.06-00.00.00.csv"},
		},
		{
			name:  "dated tier used when strict is empty",
			names: []string{"map_2025.05.06-01.00.00.csv", "export.csv"},
			want:  []string{"map_2025.05.06-01.00.00.csv"},
		},
		{
			name:  "any csv as absolute fallback",
			names: []string{"export.csv", "notes.txt"},
			want:  []string{"export.csv"},
		},
		{
			name:  "nothing matches",
			names: []string{"notes.txt"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchFiles(tt.names, killfeedTiers)
			if len(got) != len(tt.want) {
				t.Fatalf("matchFiles() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("matchFiles()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractFileTime(t *testing.T) {
	want := time.Date(2025, 5, 6, 13, 0, 0, 0, time.UTC)
	if got := ExtractFileTime("2025.05.06-13.00.00.csv"); !got.Equal(want) {
		t.Errorf("ExtractFileTime() = %v, want %v", got, want)
	}
	if got := ExtractFileTime("export.csv"); !got.IsZero() {
		t.Errorf("expected zero time for undated name, got %v", got)
	}
}
