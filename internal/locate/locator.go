package locate

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
	"github.com/pvpstats/killfeed-ingest/internal/remote"
)

// Kind selects which file family to discover.
type Kind int

const (
	KindKillfeed Kind = iota
	KindGameLog
)

// Map subdirectories seen across hosting providers. Checked before a
// full listing of the deathlogs directory.
var knownMapDirs = []string{
	"world_0", "world0", "world_1", "world1",
	"world_2", "world_3", "world_4",
	"map_0", "map0", "main", "default",
}

const (
	recursiveMaxDepth = 3
	probeLookback     = 6 // hours of synthesized filenames to probe
)

// Locator discovers remote kill-feed and game-log files for a target,
// walking an ordered list of fallback strategies and stopping at the
// first that yields candidates.
type Locator struct {
	maxFiles int

	mu    sync.Mutex
	cache map[string][]string // server id -> directories that held files before
}

// NewLocator creates a locator. maxFiles bounds the candidate count per run.
func NewLocator(maxFiles int) *Locator {
	if maxFiles <= 0 {
		maxFiles = 1000
	}
	return &Locator{
		maxFiles: maxFiles,
		cache:    make(map[string][]string),
	}
}

// strategy is one named way of finding files. The name appears only in
// candidate diagnostics and logs, never in correctness decisions.
type strategy struct {
	name   string
	locate func(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error)
}

// Locate returns candidates for a target, chronologically ordered by
// embedded filename timestamp where parseable.
func (l *Locator) Locate(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error) {
	strategies := []strategy{
		{"cached", l.fromCache},
		{"explicit", l.fromExplicitPath},
		{"canonical", l.fromCanonicalLayout},
		{"alternate", l.fromAlternateRoots},
		{"recursive", l.fromRecursiveSearch},
		{"probe", l.fromProbing},
	}

	var lastErr error
	for _, st := range strategies {
		candidates, err := st.locate(ctx, sess, target, kind)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			log.Debug().
				Err(err).
				Str("server_id", target.ID).
				Str("strategy", st.name).
				Msg("Discovery strategy failed, trying next")
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		for i := range candidates {
			candidates[i].Strategy = st.name
		}
		l.remember(target.ID, candidates)
		sortCandidates(candidates)
		if len(candidates) > l.maxFiles {
			log.Warn().
				Str("server_id", target.ID).
				Int("found", len(candidates)).
				Int("max", l.maxFiles).
				Msg("Candidate limit reached, dropping oldest files")
			// Keep the newest files; the oldest are the ones a capped
			// backfill can afford to lose.
			candidates = candidates[len(candidates)-l.maxFiles:]
		}

		log.Debug().
			Str("server_id", target.ID).
			Str("strategy", st.name).
			Int("candidates", len(candidates)).
			Msg("Files located")
		return candidates, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no files located for server %s: %w", target.ID, lastErr)
	}
	return nil, nil
}

// Forget clears the directory cache for a server, used when a target's
// connection parameters change.
func (l *Locator) Forget(serverID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, serverID)
}

func (l *Locator) remember(serverID string, candidates []domain.FileCandidate) {
	dirs := make(map[string]bool)
	for _, c := range candidates {
		dirs[path.Dir(c.Path)] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	known := l.cache[serverID]
	for d := range dirs {
		found := false
		for _, k := range known {
			if k == d {
				found = true
				break
			}
		}
		if !found {
			known = append(known, d)
		}
	}
	l.cache[serverID] = known
}

func (l *Locator) cachedDirs(serverID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.cache[serverID]...)
}

// serverRoot builds the provider convention {hostname}_{numericId}.
func serverRoot(target domain.ServerTarget) string {
	host := target.Hostname
	if host == "" {
		host = target.Host
	}
	return "/" + host + "_" + target.NumericID
}

func tiersFor(kind Kind) []matchTier {
	if kind == KindGameLog {
		return gameLogTiers
	}
	return killfeedTiers
}

// collectDir lists one directory and converts matching names to candidates.
func collectDir(ctx context.Context, sess remote.Session, dir string, kind Kind) ([]domain.FileCandidate, error) {
	names, err := sess.ListDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	matched := matchFiles(names, tiersFor(kind))

	candidates := make([]domain.FileCandidate, 0, len(matched))
	for _, name := range matched {
		candidates = append(candidates, domain.FileCandidate{
			Path:     path.Join(dir, name),
			Name:     name,
			FileTime: ExtractFileTime(name),
		})
	}
	return candidates, nil
}

// fromCache retries directories that produced files on earlier ticks,
// avoiding the full walk on every run.
func (l *Locator) fromCache(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error) {
	var all []domain.FileCandidate
	for _, dir := range l.cachedDirs(target.ID) {
		candidates, err := collectDir(ctx, sess, dir, kind)
		if err != nil {
			continue // cached dir may have vanished, fall through to rediscovery
		}
		all = append(all, candidates...)
	}
	return all, nil
}

// fromExplicitPath honors an operator-supplied path, which may point at a
// directory or directly at a file.
func (l *Locator) fromExplicitPath(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error) {
	if target.ExplicitPath == "" {
		return nil, nil
	}

	isDir, err := sess.IsDir(ctx, target.ExplicitPath)
	if err != nil {
		return nil, err
	}
	if isDir {
		return collectDir(ctx, sess, target.ExplicitPath, kind)
	}

	ok, err := sess.Exists(ctx, target.ExplicitPath)
	if err != nil || !ok {
		return nil, err
	}
	name := path.Base(target.ExplicitPath)
	return []domain.FileCandidate{{
		Path:     target.ExplicitPath,
		Name:     name,
		FileTime: ExtractFileTime(name),
	}}, nil
}

// fromCanonicalLayout checks {hostname}_{numericId}/actual1/deathlogs
// plus its map subdirectories (kill-feed) or {root}/Logs (game log).
func (l *Locator) fromCanonicalLayout(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error) {
	root := serverRoot(target)

	if kind == KindGameLog {
		logsDir := path.Join(root, "Logs")
		ok, err := sess.Exists(ctx, logsDir)
		if err != nil || !ok {
			return nil, err
		}
		return collectDir(ctx, sess, logsDir, kind)
	}

	deathlogs := path.Join(root, "actual1", "deathlogs")
	ok, err := sess.Exists(ctx, deathlogs)
	if err != nil || !ok {
		return nil, err
	}

	var all []domain.FileCandidate

	// Known map subdirectories first, then any other subdirectory found
	// by listing; maps added by the provider later still get picked up.
	checked := make(map[string]bool)
	for _, sub := range knownMapDirs {
		subDir := path.Join(deathlogs, sub)
		checked[sub] = true
		if exists, err := sess.Exists(ctx, subDir); err != nil || !exists {
			continue
		}
		candidates, err := collectDir(ctx, sess, subDir, kind)
		if err != nil {
			continue
		}
		all = append(all, candidates...)
	}

	if len(all) == 0 {
		entries, err := sess.ListDir(ctx, deathlogs)
		if err == nil {
			for _, entry := range entries {
				if checked[entry] {
					continue
				}
				subDir := path.Join(deathlogs, entry)
				if isDir, err := sess.IsDir(ctx, subDir); err != nil || !isDir {
					continue
				}
				candidates, err := collectDir(ctx, sess, subDir, kind)
				if err != nil {
					continue
				}
				all = append(all, candidates...)
			}
		}
	}

	// Flat layout: files directly under deathlogs
	if len(all) == 0 {
		return collectDir(ctx, sess, deathlogs, kind)
	}
	return all, nil
}

// fromAlternateRoots probes the known deviations from the canonical layout.
func (l *Locator) fromAlternateRoots(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error) {
	root := serverRoot(target)

	var dirs []string
	if kind == KindGameLog {
		dirs = []string{
			path.Join(root, "actual1", "Logs"),
			path.Join(root, "logs"),
			"/Logs",
			"/logs",
		}
	} else {
		dirs = []string{
			path.Join(root, "deathlogs"),
			path.Join(root, "Logs", "deathlogs"),
			path.Join(root, "Logs"),
			path.Join(root, "logs"),
			"/deathlogs",
			"/logs",
		}
	}

	for _, dir := range dirs {
		ok, err := sess.Exists(ctx, dir)
		if err != nil || !ok {
			continue
		}
		candidates, err := collectDir(ctx, sess, dir, kind)
		if err != nil {
			continue
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return nil, nil
}

// fromRecursiveSearch walks the server root breadth-first to a bounded
// depth, matching filenames along the way.
func (l *Locator) fromRecursiveSearch(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error) {
	roots := []string{serverRoot(target), "/"}

	for _, root := range roots {
		if ok, err := sess.Exists(ctx, root); err != nil || !ok {
			continue
		}

		var all []domain.FileCandidate
		type frame struct {
			dir   string
			depth int
		}
		queue := []frame{{root, 0}}

		for len(queue) > 0 && len(all) < l.maxFiles {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f := queue[0]
			queue = queue[1:]

			candidates, err := collectDir(ctx, sess, f.dir, kind)
			if err != nil {
				continue
			}
			all = append(all, candidates...)

			if f.depth >= recursiveMaxDepth {
				continue
			}
			entries, err := sess.ListDir(ctx, f.dir)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				sub := path.Join(f.dir, entry)
				if isDir, err := sess.IsDir(ctx, sub); err == nil && isDir {
					queue = append(queue, frame{sub, f.depth + 1})
				}
			}
		}

		if len(all) > 0 {
			return all, nil
		}
	}
	return nil, nil
}

// fromProbing is the last resort: synthesize filenames at plausible
// rotation timestamps and test each for existence. Kill-feed files rotate
// on the hour, so probing recent whole hours catches a live server whose
// directory listing is broken.
func (l *Locator) fromProbing(ctx context.Context, sess remote.Session, target domain.ServerTarget, kind Kind) ([]domain.FileCandidate, error) {
	if kind == KindGameLog {
		// Only one plausible location left to test directly
		p := path.Join(serverRoot(target), "Logs", GameLogName)
		ok, err := sess.Exists(ctx, p)
		if err != nil || !ok {
			return nil, err
		}
		return []domain.FileCandidate{{Path: p, Name: GameLogName}}, nil
	}

	dirs := []string{
		path.Join(serverRoot(target), "actual1", "deathlogs"),
		path.Join(serverRoot(target), "deathlogs"),
	}

	var all []domain.FileCandidate
	now := time.Now().UTC().Truncate(time.Hour)
	for _, dir := range dirs {
		for h := 0; h < probeLookback; h++ {
			name := SynthesizeName(now.Add(-time.Duration(h) * time.Hour))
			p := path.Join(dir, name)
			ok, err := sess.Exists(ctx, p)
			if err != nil || !ok {
				continue
			}
			all = append(all, domain.FileCandidate{
				Path:     p,
				Name:     name,
				FileTime: ExtractFileTime(name),
			})
		}
		if len(all) > 0 {
			break
		}
	}
	return all, nil
}

// sortCandidates orders chronologically by embedded timestamp; files
// without one keep their discovery order after the dated ones.
func sortCandidates(candidates []domain.FileCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := candidates[i].FileTime, candidates[j].FileTime
		if ti.IsZero() || tj.IsZero() {
			return tj.IsZero() && !ti.IsZero()
		}
		return ti.Before(tj)
	})
}
