// Package export reads Timing-style activity exports and partitions them
// into bounded, date-delimited chunks.
package export

import (
	"fmt"
	"time"
)

// Activity is one logged interval of application/window focus. Records are
// read-only inputs; nothing downstream mutates them.
type Activity struct {
	Title       string    `json:"activityTitle,omitempty"`
	Application string    `json:"application"`
	Start       time.Time `json:"startDate"`
	End         time.Time `json:"endDate"`
	Path        string    `json:"path,omitempty"`
}

// Duration returns the interval length.
func (a Activity) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// DurationSeconds returns the interval length in whole seconds.
func (a Activity) DurationSeconds() int {
	return int(a.Duration() / time.Second)
}

// Midpoint returns the temporal center of the interval, used for commit
// correlation queries.
func (a Activity) Midpoint() time.Time {
	return a.Start.Add(a.Duration() / 2)
}

// MalformedEntryError reports an export entry that cannot be processed.
// It aborts the chunk containing the entry; processing continues with the
// next chunk.
type MalformedEntryError struct {
	Index int    // position in the export array
	Field string // offending field
	Value string // raw value, may be empty
	Err   error  // underlying parse error, may be nil
}

func (e *MalformedEntryError) Error() string {
	msg := fmt.Sprintf("malformed export entry %d: field %q", e.Index, e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" value %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedEntryError) Unwrap() error { return e.Err }

// timeLayouts are the timestamp formats accepted in exports, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
