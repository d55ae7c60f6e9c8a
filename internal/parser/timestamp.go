package parser

import "time"

// timestampLayouts is tried in order. The first entry is the format the
// game servers actually emit; the rest cover feeds produced by older
// builds and third-party exporters. The US slash form is tried before
// the EU one, so an ambiguous slash date resolves month-first.
var timestampLayouts = []string{
	"2006.01.02-15.04.05",
	"2006.01.02-15:04:05",
	"2006.01.02 15.04.05",
	"2006.01.02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15.04.05",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
}

// parseTimestamp tries each known layout in order.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// looksLikeTimestamp is the structural check used during delimiter
// validation. An exact parse accepts every supported layout; behind it,
// a loose digits-then-separator check lets corrupt-but-real timestamps
// still validate, since those records are kept with synthesized times
// rather than rejected.
func looksLikeTimestamp(s string) bool {
	if _, ok := parseTimestamp(s); ok {
		return true
	}
	if len(s) < 10 {
		return false
	}
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits < 2 || digits > 4 || digits >= len(s) {
		return false
	}
	sep := s[digits]
	return sep == '.' || sep == '-' || sep == '/'
}
