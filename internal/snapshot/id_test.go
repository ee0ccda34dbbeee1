package snapshot

import (
	"testing"
	"time"
)

func TestNewIDFormat(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	id := NewID(at)
	if got, want := id.String(), "20250102-030405"; got != want {
		t.Errorf("id = %q, want %q", got, want)
	}
}

func TestParseIDRoundTrip(t *testing.T) {
	id, err := ParseID("20250102-030405")
	if err != nil {
		t.Fatal(err)
	}
	got, err := id.Time()
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("time = %v, want %v", got, want)
	}
}

func TestParseIDRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"latest",
		"2025-01-02",
		"20250102030405",
		"20250102-030405x",
		"20251332-030405", // month 13 day 32
		"202501020-30405", // digits in the wrong places
	} {
		if _, err := ParseID(raw); err == nil {
			t.Errorf("ParseID(%q) accepted a malformed identifier", raw)
		}
	}
}

func TestIdentifiersSortChronologically(t *testing.T) {
	earlier := NewID(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC))
	later := NewID(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if !(earlier.String() < later.String()) {
		t.Errorf("%s should sort before %s", earlier, later)
	}
}

func TestOlderThan(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	window := 30 * 24 * time.Hour
	tests := []struct {
		age  time.Duration
		want bool
	}{
		{29 * 24 * time.Hour, false},
		{30 * 24 * time.Hour, false},
		{30*24*time.Hour + time.Second, true},
		{100 * 24 * time.Hour, true},
	}
	for _, tt := range tests {
		id := NewID(now.Add(-tt.age))
		if got := id.OlderThan(now, window); got != tt.want {
			t.Errorf("OlderThan(age=%v) = %v, want %v", tt.age, got, tt.want)
		}
	}
}
