// Package ingest drives one collection run end to end: resolve the
// fetch window, advance the watermark, page through the team-log feed,
// and append events not seen before to the day's log and checksum
// index.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/dropbox-collector/internal/event"
)

// secondsPerUnit maps the range shorthand suffix to seconds.
var secondsPerUnit = map[string]int64{
	"s": 1,
	"m": 60,
	"h": 3600,
	"d": 86400,
	"w": 604800,
}

// Window is the [Start, End) time range fetched by one run.
type Window struct {
	Start time.Time
	End   time.Time
}

// String renders the window with wire-format bounds.
func (w Window) String() string {
	return event.FormatAPITime(w.Start) + ".." + event.FormatAPITime(w.End)
}

// ParseRange converts range shorthand like "90m" or "1d" into a
// duration. The unit suffix is one of s, m, h, d, w.
func ParseRange(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("time range %q: want <number><unit>", s)
	}
	secs, ok := secondsPerUnit[s[len(s)-1:]]
	if !ok {
		return 0, fmt.Errorf("time range %q: unit must be one of s, m, h, d, w", s)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("time range %q: want <number><unit>", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("time range %q: must be positive", s)
	}
	return time.Duration(n*secs) * time.Second, nil
}

// ParseStamps parses an explicit "start#end" window override. Both
// bounds are wire-format timestamps and start must not be after end.
func ParseStamps(s string) (Window, error) {
	startRaw, endRaw, ok := strings.Cut(s, "#")
	if !ok {
		return Window{}, fmt.Errorf("timestamp pair %q: want start#end", s)
	}
	start, err := event.ParseAPITime(startRaw)
	if err != nil {
		return Window{}, fmt.Errorf("timestamp pair start: %w", err)
	}
	end, err := event.ParseAPITime(endRaw)
	if err != nil {
		return Window{}, fmt.Errorf("timestamp pair end: %w", err)
	}
	if start.After(end) {
		return Window{}, fmt.Errorf("timestamp pair %q: start is after end", s)
	}
	return Window{Start: start, End: end}, nil
}
