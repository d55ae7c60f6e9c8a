package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// Game log lines carry an engine prefix with a timestamp and a channel:
//
//	[2025.05.06-00.00.00:123][  7]LogSFPS: Mission GA_Airport_mis1 switched to IN_PROGRESS
//	[2025.05.06-00.01.12:512][ 12]LogNet: Join succeeded: PlayerA
var (
	gameLogLineRe = regexp.MustCompile(`^\[(\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}):\d+\]\[\s*\d+\](\w+): (.+)$`)

	joinRe       = regexp.MustCompile(`^Join succeeded: (.+)$`)
	disconnectRe = regexp.MustCompile(`^UChannel::Close:.*UniqueId: (?:EOS|Steam):\|?([0-9A-Za-z]+)`)
	missionRe    = regexp.MustCompile(`^Mission (\S+) switched to (\w+)$`)
	killedRe     = regexp.MustCompile(`^Killed: (.+?) by (.+?) with (\S+?)(?: at (\d+(?:\.\d+)?)m)?$`)
	airdropRe    = regexp.MustCompile(`^AirDrop switched to (\w+)$`)
)

// GameLogParser parses the server's append-only structured log.
type GameLogParser struct {
	now func() time.Time
}

// NewGameLogParser creates a parser using the wall clock for
// synthesized timestamps.
func NewGameLogParser() *GameLogParser {
	return &GameLogParser{now: time.Now}
}

// Parse implements Parser for the structured game log. Lines that do
// not match any known entry shape are passed over silently; the file is
// rejected as a whole only when no line even carries the engine prefix.
func (p *GameLogParser) Parse(serverID string, batch domain.RawBatch) ([]domain.NormalizedEvent, int, error) {
	lines := splitLines(batch.Content)
	if len(lines) == 0 {
		return nil, 0, nil
	}

	var (
		events        []domain.NormalizedEvent
		prefixedLines int
		badTimestamps int
	)
	for i, line := range lines {
		lineNo := i + 1
		if lineNo <= batch.StartLine {
			continue
		}
		m := gameLogLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		prefixedLines++

		ts, parsed := parseTimestamp(m[1])
		if !parsed {
			ts = p.now().UTC().Add(time.Duration(badTimestamps) * time.Second)
			badTimestamps++
		}

		ev, ok := parseGameLogEntry(m[2], m[3])
		if !ok {
			continue
		}
		ev.Timestamp = ts
		ev.ServerID = serverID
		ev.SourceFile = batch.Candidate.Path
		ev.SourceLine = lineNo
		events = append(events, ev)
	}

	if prefixedLines == 0 {
		return nil, 0, ErrBadStructure
	}
	if badTimestamps > 0 {
		log.Warn().
			Str("server_id", serverID).
			Str("file", batch.Candidate.Path).
			Int("count", badTimestamps).
			Msg("Log entries with unparseable timestamps kept with synthesized time")
	}

	return events, len(lines), nil
}

// parseGameLogEntry matches one channel message against the known entry
// shapes. The bool result is false for lines of no interest.
func parseGameLogEntry(channel, msg string) (domain.NormalizedEvent, bool) {
	switch channel {
	case "LogNet":
		if m := joinRe.FindStringSubmatch(msg); m != nil {
			return domain.NormalizedEvent{
				Type:      domain.EventConnection,
				ActorName: strings.TrimSpace(m[1]),
				Detail:    "joined",
			}, true
		}
		if m := disconnectRe.FindStringSubmatch(msg); m != nil {
			return domain.NormalizedEvent{
				Type:    domain.EventConnection,
				ActorID: m[1],
				Detail:  "disconnected",
			}, true
		}
	case "LogSFPS":
		if m := missionRe.FindStringSubmatch(msg); m != nil {
			return domain.NormalizedEvent{
				Type:   domain.EventMission,
				Detail: m[1] + " " + m[2],
			}, true
		}
		if m := killedRe.FindStringSubmatch(msg); m != nil {
			ev := domain.NormalizedEvent{
				TargetName: strings.TrimSpace(m[1]),
				ActorName:  strings.TrimSpace(m[2]),
				Weapon:     m[3],
			}
			if m[4] != "" {
				ev.Distance, _ = strconv.ParseFloat(m[4], 64)
			}
			ev.Type = classifyKillRecord(&ev)
			return ev, true
		}
		if m := airdropRe.FindStringSubmatch(msg); m != nil {
			return domain.NormalizedEvent{
				Type:   domain.EventOther,
				Detail: "airdrop " + strings.ToLower(m[1]),
			}, true
		}
	}
	return domain.NormalizedEvent{}, false
}
