package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// Kill-feed column layout, fixed by the game server:
// timestamp;killerName;killerId;victimName;victimId;weapon;distance[;platform]
const (
	colTimestamp = iota
	colKillerName
	colKillerID
	colVictimName
	colVictimID
	colWeapon
	colDistance
	colPlatform

	minKillfeedFields = 6
)

// candidateDelimiters in preference order. The semicolon prior reflects
// the dominant real-world feed format.
var candidateDelimiters = []rune{';', ',', '\t'}

const semicolonWeight = 3

// KillfeedParser parses delimited kill-feed files.
type KillfeedParser struct {
	now func() time.Time
}

// NewKillfeedParser creates a parser using the wall clock for
// synthesized timestamps.
func NewKillfeedParser() *KillfeedParser {
	return &KillfeedParser{now: time.Now}
}

// Parse implements Parser for the delimited kill-feed format.
func (p *KillfeedParser) Parse(serverID string, batch domain.RawBatch) ([]domain.NormalizedEvent, int, error) {
	lines := splitLines(batch.Content)
	if len(lines) == 0 {
		return nil, 0, nil
	}

	delim, ok := sniffDelimiter(lines)
	if !ok {
		return nil, 0, ErrBadStructure
	}

	var (
		events        []domain.NormalizedEvent
		badTimestamps int
	)
	for i, line := range lines {
		lineNo := i + 1
		if lineNo <= batch.StartLine {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, string(delim))
		if len(fields) < minKillfeedFields {
			continue
		}
		if isHeaderLine(fields) {
			continue
		}

		ts, parsed := parseTimestamp(strings.TrimSpace(fields[colTimestamp]))
		if !parsed {
			// Malformed timestamps never drop the record. Each synthesized
			// timestamp is offset by the running count to keep them distinct
			// for per-run dedup.
			ts = p.now().UTC().Add(time.Duration(badTimestamps) * time.Second)
			badTimestamps++
		}

		ev := domain.NormalizedEvent{
			ActorName:  strings.TrimSpace(fields[colKillerName]),
			ActorID:    strings.TrimSpace(fields[colKillerID]),
			TargetName: strings.TrimSpace(fields[colVictimName]),
			TargetID:   strings.TrimSpace(fields[colVictimID]),
			Weapon:     strings.TrimSpace(fields[colWeapon]),
			Timestamp:  ts,
			ServerID:   serverID,
			SourceFile: batch.Candidate.Path,
			SourceLine: lineNo,
		}
		if len(fields) > colDistance {
			ev.Distance = parseDistance(fields[colDistance])
		}
		if len(fields) > colPlatform {
			ev.Platform = strings.TrimSpace(fields[colPlatform])
		}
		ev.Type = classifyKillRecord(&ev)

		events = append(events, ev)
	}

	if badTimestamps > 0 {
		log.Warn().
			Str("server_id", serverID).
			Str("file", batch.Candidate.Path).
			Int("count", badTimestamps).
			Msg("Records with unparseable timestamps kept with synthesized time")
	}

	return events, len(lines), nil
}

// classifyKillRecord marks a record as suicide when the actor and target
// are the same player, by id or by non-empty name.
func classifyKillRecord(ev *domain.NormalizedEvent) domain.EventType {
	if ev.ActorID != "" && ev.ActorID == ev.TargetID {
		return domain.EventSuicide
	}
	if ev.ActorName != "" && ev.ActorName == ev.TargetName {
		return domain.EventSuicide
	}
	return domain.EventKill
}

// parseDistance accepts both dot and comma decimal separators.
func parseDistance(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return d
}

// isHeaderLine detects an exported header row.
func isHeaderLine(fields []string) bool {
	first := strings.ToLower(strings.TrimSpace(fields[colTimestamp]))
	return first == "timestamp" || first == "time" || first == "date"
}

// sniffDelimiter picks the field delimiter by weighted character
// frequency over a sample of lines, then validates that the sample
// actually splits into data-shaped rows with that delimiter. Candidates
// are retried in descending score order so a wrong frequency winner does
// not reject an otherwise parseable file.
func sniffDelimiter(lines []string) (rune, bool) {
	sample := sampleLines(lines, 10)
	if len(sample) == 0 {
		return 0, false
	}

	scores := make(map[rune]int, len(candidateDelimiters))
	for _, line := range sample {
		for _, d := range candidateDelimiters {
			n := strings.Count(line, string(d))
			if d == ';' {
				n *= semicolonWeight
			}
			scores[d] += n
		}
	}

	ordered := make([]rune, len(candidateDelimiters))
	copy(ordered, candidateDelimiters)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if scores[ordered[j]] > scores[ordered[i]] {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	for _, d := range ordered {
		if scores[d] == 0 {
			continue
		}
		if validateDelimiter(sample, d) {
			return d, true
		}
	}
	return 0, false
}

// validateDelimiter requires at least one sampled non-header line to
// split into enough fields with a timestamp-shaped first field.
func validateDelimiter(sample []string, delim rune) bool {
	for _, line := range sample {
		fields := strings.Split(line, string(delim))
		if len(fields) < minKillfeedFields {
			continue
		}
		if isHeaderLine(fields) {
			continue
		}
		if looksLikeTimestamp(strings.TrimSpace(fields[colTimestamp])) {
			return true
		}
	}
	return false
}

// sampleLines returns up to max non-empty lines from the front of the file.
func sampleLines(lines []string, max int) []string {
	var sample []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == max {
			break
		}
	}
	return sample
}
