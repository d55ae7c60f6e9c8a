package api

import (
	"fmt"
	"regexp"
	"time"
)

var serverIDPattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z._-]{0,63}$`)

const maxQueryLimit = 10000

// ValidationError carries the rejected field for API error responses.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateServerID rejects empty or unusably-shaped server ids before
// they reach a query.
func ValidateServerID(id string) error {
	if id == "" {
		return &ValidationError{Field: "server_id", Message: "server_id is required"}
	}
	if !serverIDPattern.MatchString(id) {
		return &ValidationError{Field: "server_id", Message: "server_id contains invalid characters"}
	}
	return nil
}

// ValidateTimeRange requires from before to, both set or both empty.
func ValidateTimeRange(from, to time.Time) error {
	if from.IsZero() != to.IsZero() {
		return &ValidationError{Field: "from/to", Message: "from and to must be supplied together"}
	}
	if !from.IsZero() && !from.Before(to) {
		return &ValidationError{Field: "from/to", Message: "from must be earlier than to"}
	}
	return nil
}

// ClampLimit bounds a requested row limit, supplying the default for
// zero or negative values.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
