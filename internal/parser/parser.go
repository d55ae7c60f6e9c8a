package parser

import (
	"errors"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// ErrBadStructure means the file content did not look like the expected
// format at all. The caller skips the file without advancing its line
// position so a later, correct read can still pick it up.
var ErrBadStructure = errors.New("file content failed structural validation")

// Parser turns raw file content into normalized events.
//
// Parse skips lines before batch.StartLine and returns the events found
// after it together with the total line count of the content, which the
// caller uses to advance the server's resume offset.
type Parser interface {
	Parse(serverID string, batch domain.RawBatch) ([]domain.NormalizedEvent, int, error)
}

// splitLines splits content on \n and drops a trailing \r per line.
// A trailing newline does not produce a phantom empty line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			end := i
			if end > start && content[end-1] == '\r' {
				end--
			}
			lines = append(lines, content[start:end])
			start = i + 1
		}
	}
	if start < len(content) {
		end := len(content)
		if content[end-1] == '\r' {
			end--
		}
		lines = append(lines, content[start:end])
	}
	return lines
}
