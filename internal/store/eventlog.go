package store

import (
	"fmt"
	"os"
)

// EventLog appends canonical event lines to a per-day log file.
type EventLog struct {
	path string
	file *os.File
}

// OpenEventLog opens the log at path for appending, creating it if
// missing.
func OpenEventLog(path string) (*EventLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening event log %s: %w", path, err)
	}
	return &EventLog{path: path, file: file}, nil
}

// Append writes one canonical event line followed by a newline.
func (e *EventLog) Append(line []byte) error {
	if _, err := fmt.Fprintf(e.file, "%s\n", line); err != nil {
		return fmt.Errorf("appending to event log %s: %w", e.path, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (e *EventLog) Close() error { return e.file.Close() }
