// Package snapshot builds local snapshot bundles and owns the identifier and
// workspace lifecycle of a run.
package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the identifier timestamp format. Lexicographic order of
// identifiers equals chronological order.
const Layout = "20060102-150405"

// LatestAlias is the mutable remote pointer to the most recently published
// snapshot. It is a key prefix, not an identifier, and never parses as one.
const LatestAlias = "latest"

// ID names one snapshot. It doubles as the local workspace subdirectory name
// and the remote key prefix.
type ID string

// NewID derives an identifier from the run's start time.
func NewID(t time.Time) ID {
	return ID(t.Format(Layout))
}

// ParseID validates a remote key segment as a snapshot identifier.
func ParseID(s string) (ID, error) {
	trimmed := strings.TrimSuffix(s, "/")
	t, err := time.Parse(Layout, trimmed)
	if err != nil {
		return "", fmt.Errorf("not a snapshot identifier: %q", s)
	}
	// time.Parse tolerates some non-canonical spellings; require exactness.
	if t.Format(Layout) != trimmed {
		return "", fmt.Errorf("not a snapshot identifier: %q", s)
	}
	return ID(trimmed), nil
}

func (id ID) String() string { return string(id) }

// Time returns the creation timestamp encoded in the identifier.
func (id ID) Time() (time.Time, error) {
	return time.Parse(Layout, string(id))
}

// OlderThan reports whether the snapshot's age at now exceeds window.
func (id ID) OlderThan(now time.Time, window time.Duration) bool {
	t, err := id.Time()
	if err != nil {
		return false
	}
	return now.Sub(t) > window
}
