package store

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// watermarkLayout is the stored form: second precision, no zone marker.
// The zone is appended when the value is turned into a window bound.
const watermarkLayout = "2006-01-02T15:04:05"

// Watermark persists the last run-start instant. Its value becomes the
// start of the next run's fetch window.
type Watermark struct {
	path string
}

// NewWatermark returns a Watermark stored at path.
func NewWatermark(path string) *Watermark {
	return &Watermark{path: path}
}

// Path returns the watermark file location.
func (w *Watermark) Path() string { return w.path }

// Read returns the stored instant, or midnight UTC of now's day when no
// watermark exists yet. A watermark file that does not parse is an
// error: better to stop than to fetch from a bogus window.
func (w *Watermark) Read(now time.Time) (time.Time, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			midnight := now.UTC().Truncate(24 * time.Hour)
			return midnight, nil
		}
		return time.Time{}, fmt.Errorf("reading watermark %s: %w", w.path, err)
	}

	body := strings.TrimSpace(string(data))
	ts, err := time.Parse(watermarkLayout, body)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing watermark %s: %w", w.path, err)
	}
	return ts.UTC(), nil
}

// Write stores ts as the new watermark, truncated to whole seconds, and
// returns the canonical value with the UTC marker appended.
func (w *Watermark) Write(ts time.Time) (string, error) {
	body := ts.UTC().Format(watermarkLayout)
	if err := os.WriteFile(w.path, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("writing watermark %s: %w", w.path, err)
	}
	return body + "Z", nil
}
