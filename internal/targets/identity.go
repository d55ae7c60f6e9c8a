package targets

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// DeriveNumericID produces the numeric server id used by the canonical
// remote directory convention, in precedence order:
//
//  1. the id itself when it is already numeric
//  2. the known-id table from the servers file
//  3. a stable projection of a UUID-shaped id: the first hex segment
//     reduced into the 1000-9999 range
//  4. the digit run embedded in the hostname
//
// Returns 0 when nothing applies; callers treat 0 as "no canonical
// directory" and rely on the later discovery strategies.
func DeriveNumericID(id, hostname string, known map[string]int) int {
	if n, err := strconv.Atoi(id); err == nil && n > 0 {
		return n
	}

	if n, ok := known[id]; ok && n > 0 {
		return n
	}

	if u, err := uuid.Parse(id); err == nil {
		seg := strings.SplitN(u.String(), "-", 2)[0]
		if v, err := strconv.ParseUint(seg, 16, 64); err == nil {
			n := int(v % 10000)
			if n < 1000 {
				n += 1000
			}
			return n
		}
	}

	if n := hostnameDigits(hostname); n > 0 {
		return n
	}

	return 0
}

// hostnameDigits extracts the first run of digits from a hostname.
func hostnameDigits(hostname string) int {
	start := -1
	for i, r := range hostname {
		if unicode.IsDigit(r) {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			n, _ := strconv.Atoi(hostname[start:i])
			return n
		}
	}
	if start != -1 {
		n, _ := strconv.Atoi(hostname[start:])
		return n
	}
	return 0
}
