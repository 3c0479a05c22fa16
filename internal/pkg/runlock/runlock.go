// Package runlock serializes collector runs with an exclusive lock file.
//
// The lock is advisory: a second invocation that finds a fresh lock file
// aborts instead of waiting. Lock files older than the TTL are treated as
// leftovers from a crashed run and reclaimed.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrHeld is returned by Acquire when another collector run owns the lock.
var ErrHeld = errors.New("run lock held")

// Holder records who created a lock file.
type Holder struct {
	PID      int   `json:"pid"`
	Acquired int64 `json:"time"`
}

// FileLock is an exclusive-create lock file with stale-lock reclaim.
type FileLock struct {
	path string
	ttl  time.Duration
}

// New returns a FileLock at path. Locks older than ttl are reclaimed.
func New(path string, ttl time.Duration) *FileLock {
	return &FileLock{path: path, ttl: ttl}
}

// Path returns the lock file location.
func (l *FileLock) Path() string { return l.path }

// Acquire takes the lock or returns ErrHeld if a live run owns it.
// A stale lock file (mtime older than the TTL) is removed and the
// acquisition retried.
func (l *FileLock) Acquire() error {
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			holder := Holder{PID: os.Getpid(), Acquired: time.Now().Unix()}
			data, _ := json.Marshal(holder)
			_, werr := f.Write(append(data, '\n'))
			cerr := f.Close()
			if werr != nil {
				return fmt.Errorf("writing lock file: %w", werr)
			}
			return cerr
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock file %s: %w", l.path, err)
		}
		fi, serr := os.Stat(l.path)
		if serr != nil {
			if os.IsNotExist(serr) {
				// Released between create and stat, try again.
				continue
			}
			return fmt.Errorf("inspecting lock file %s: %w", l.path, serr)
		}
		if time.Since(fi.ModTime()) >= l.ttl {
			_ = os.Remove(l.path)
			continue
		}
		holder, _ := l.Info()
		if holder != nil {
			return fmt.Errorf("%w by pid %d since %s", ErrHeld, holder.PID,
				time.Unix(holder.Acquired, 0).UTC().Format(time.RFC3339))
		}
		return ErrHeld
	}
}

// Release removes the lock file.
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file %s: %w", l.path, err)
	}
	return nil
}

// Info reads the holder record from the lock file. Returns nil with no
// error when the lock file does not exist.
func (l *FileLock) Info() (*Holder, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock file %s: %w", l.path, err)
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing lock file %s: %w", l.path, err)
	}
	return &h, nil
}
