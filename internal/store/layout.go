// Package store persists collector state under the cache directory:
// the high-watermark, per-day checksum indexes, and per-day event logs.
//
// On-disk layout:
//
//	<cache_dir>/logs/dropbox-downloads.<YYYYMMDD>.log
//	<cache_dir>/sums/dropbox-checksums.<YYYYMMDD>.sum
//	<cache_dir>/lock/dropbox-timestamp.lock
//	<cache_dir>/lock/dropbox-run.lock
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Layout resolves collector file paths under a cache directory.
type Layout struct {
	BaseDir string
}

// NewLayout returns a Layout rooted at baseDir.
func NewLayout(baseDir string) Layout {
	return Layout{BaseDir: baseDir}
}

// LogsDir is the directory holding per-day event logs.
func (l Layout) LogsDir() string { return filepath.Join(l.BaseDir, "logs") }

// SumsDir is the directory holding per-day checksum indexes.
func (l Layout) SumsDir() string { return filepath.Join(l.BaseDir, "sums") }

// LockDir is the directory holding the watermark and run lock files.
func (l Layout) LockDir() string { return filepath.Join(l.BaseDir, "lock") }

// LogFile is the event log for the given day.
func (l Layout) LogFile(day time.Time) string {
	name := "dropbox-downloads." + day.UTC().Format("20060102") + ".log"
	return filepath.Join(l.LogsDir(), name)
}

// SumsFile is the checksum index for the given day.
func (l Layout) SumsFile(day time.Time) string {
	name := "dropbox-checksums." + day.UTC().Format("20060102") + ".sum"
	return filepath.Join(l.SumsDir(), name)
}

// WatermarkFile is the high-watermark location.
func (l Layout) WatermarkFile() string {
	return filepath.Join(l.LockDir(), "dropbox-timestamp.lock")
}

// RunLockFile is the run-serialization lock location.
func (l Layout) RunLockFile() string {
	return filepath.Join(l.LockDir(), "dropbox-run.lock")
}

// EnsureDirs creates the logs, sums, and lock directories if missing.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.LogsDir(), l.SumsDir(), l.LockDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
