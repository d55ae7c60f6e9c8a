package locate

import (
	"path"
	"regexp"
	"time"
)

// Kill-feed filenames embed their rotation timestamp:
// 2025.04.27-00.00.00.csv
const filenameTimeLayout = "2006.01.02-15.04.05"

// GameLogName is the exact structured-log filename; nothing else in the
// log directory is a game log.
const GameLogName = "Deadside.log"

var (
	// Strict primary format: bare timestamp plus extension.
	killfeedStrictRegex = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}\.csv$`)

	// Looser: any filename carrying a date-like token, e.g. a prefixed
	// map_2025.04.27-00.00.00.csv.
	killfeedLooseRegex = regexp.MustCompile(`(\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2})\.csv$`)

	// Absolute fallback: anything with the extension.
	anyCSVRegex = regexp.MustCompile(`(?i)\.csv$`)

	gameLogRegex = regexp.MustCompile(`^Deadside\.log$`)
)

// matchTier orders filename patterns strict-to-loose. Looser tiers are
// only consulted when stricter ones matched nothing in a directory.
type matchTier struct {
	name    string
	pattern *regexp.Regexp
}

var killfeedTiers = []matchTier{
	{"strict", killfeedStrictRegex},
	{"dated", killfeedLooseRegex},
	{"any-csv", anyCSVRegex},
}

var gameLogTiers = []matchTier{
	{"exact", gameLogRegex},
}

// matchFiles filters names through the tiers, returning the first tier
// that produced matches.
func matchFiles(names []string, tiers []matchTier) []string {
	for _, tier := range tiers {
		var out []string
		for _, n := range names {
			if tier.pattern.MatchString(n) {
				out = append(out, n)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// ExtractFileTime parses the rotation timestamp embedded in a kill-feed
// filename. Returns the zero time when the name carries no parseable
// timestamp; candidates without one keep discovery order.
func ExtractFileTime(filename string) time.Time {
	base := path.Base(filename)
	m := killfeedLooseRegex.FindStringSubmatch(base)
	if len(m) < 2 {
		return time.Time{}
	}
	ts, err := time.Parse(filenameTimeLayout, m[1])
	if err != nil {
		return time.Time{}
	}
	return ts
}

// SynthesizeName builds the filename a server would have produced at t.
// Used by the probing strategy of last resort.
func SynthesizeName(t time.Time) string {
	return t.Format(filenameTimeLayout) + ".csv"
}
