// Package event models Dropbox team-log audit events and their archived
// form. Events are kept as decoded JSON objects rather than structs: the
// team-log schema is open-ended and every field must survive a round trip
// into the archive byte for byte.
package event

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// APITimeLayout is the wire format for team-log timestamps. The trailing
// Z is a literal, so parsing rejects offsets, fractional seconds, and any
// other variation of ISO 8601.
const APITimeLayout = "2006-01-02T15:04:05Z"

// Event is one audit record as decoded from the API. Values preserve
// their JSON types; numbers are json.Number so they re-serialize without
// loss.
type Event map[string]any

// TimestampError reports an event whose timestamp field does not match
// the wire format.
type TimestampError struct {
	Value string
	Err   error
}

func (e *TimestampError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event timestamp %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("event timestamp %q: malformed", e.Value)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// ParseAPITime parses a wire-format timestamp. The instant is in UTC.
// Inputs that parse but do not round-trip (fractional seconds chiefly,
// which time.Parse tolerates without a layout marker) are rejected.
func ParseAPITime(value string) (time.Time, error) {
	ts, err := time.Parse(APITimeLayout, value)
	if err != nil {
		return time.Time{}, &TimestampError{Value: value, Err: err}
	}
	if ts.Format(APITimeLayout) != value {
		return time.Time{}, &TimestampError{Value: value, Err: fmt.Errorf("not in form %s", APITimeLayout)}
	}
	return ts, nil
}

// FormatAPITime renders an instant in the wire format.
func FormatAPITime(t time.Time) string {
	return t.UTC().Format(APITimeLayout)
}

// Normalizer rewrites raw team-log events into their archived form.
type Normalizer struct {
	// Local is the zone for adjusted_timestamp. Nil means the system
	// local zone.
	Local *time.Location
}

// Normalize annotates e in place with original_timestamp (the event
// instant in UTC) and adjusted_timestamp (the same instant in the local
// zone), both as "2006-01-02 15:04:05 MST". The wire timestamp field is
// kept. Returns a TimestampError when the timestamp is missing, not a
// string, or malformed.
func (n Normalizer) Normalize(e Event) error {
	raw, ok := e["timestamp"]
	if !ok {
		return &TimestampError{Value: "", Err: fmt.Errorf("missing timestamp field")}
	}
	value, ok := raw.(string)
	if !ok {
		return &TimestampError{Value: fmt.Sprintf("%v", raw), Err: fmt.Errorf("timestamp is not a string")}
	}
	ts, err := ParseAPITime(value)
	if err != nil {
		return err
	}

	local := n.Local
	if local == nil {
		local = time.Local
	}

	e["original_timestamp"] = ts.UTC().Format("2006-01-02 15:04:05 MST")
	e["adjusted_timestamp"] = ts.In(local).Format("2006-01-02 15:04:05 MST")
	return nil
}

// Canonical returns the single-line JSON form of the event: compact,
// keys sorted, HTML left unescaped. This is the exact byte sequence
// appended to the day's log file and fed to Fingerprint.
func (e Event) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("serializing event: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Checksum returns the hex MD5 of a canonical event line. MD5 is used
// for duplicate detection, not security.
func Checksum(line []byte) string {
	sum := md5.Sum(line)
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the checksum of the event's canonical form.
func (e Event) Fingerprint() (string, error) {
	data, err := e.Canonical()
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}
