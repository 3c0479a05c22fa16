package store

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// SeedChecksum returns the initialization line for a new checksum index:
// the hex MD5 of "Initialized:" plus the index's own path. The seed
// makes a freshly created file non-empty and self-describing, and can
// never collide with a real event fingerprint of the same run.
func SeedChecksum(path string) string {
	sum := md5.Sum([]byte("Initialized:" + path))
	return hex.EncodeToString(sum[:])
}

// ChecksumIndex is the per-day duplicate filter: one hex MD5 fingerprint
// per line. The full index is held in memory for the duration of a run;
// Record appends to both the working set and the file, so duplicates
// are caught across pages of a single run as well as across runs.
type ChecksumIndex struct {
	path string
	file *os.File
	seen map[string]struct{}
}

// OpenChecksumIndex opens the index at path, creating and seeding it
// first if it does not exist, and loads all known fingerprints.
func OpenChecksumIndex(path string) (*ChecksumIndex, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		seed := SeedChecksum(path)
		if werr := os.WriteFile(path, []byte(seed+"\n"), 0644); werr != nil {
			return nil, fmt.Errorf("seeding checksum index %s: %w", path, werr)
		}
	}

	seen, err := loadChecksums(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening checksum index %s: %w", path, err)
	}

	return &ChecksumIndex{path: path, file: file, seen: seen}, nil
}

func loadChecksums(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading checksum index %s: %w", path, err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			seen[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning checksum index %s: %w", path, err)
	}
	return seen, nil
}

// Contains reports whether the fingerprint is already recorded.
func (c *ChecksumIndex) Contains(sum string) bool {
	_, ok := c.seen[sum]
	return ok
}

// Record appends the fingerprint to the index file and working set.
func (c *ChecksumIndex) Record(sum string) error {
	if _, err := c.file.WriteString(sum + "\n"); err != nil {
		return fmt.Errorf("appending to checksum index %s: %w", c.path, err)
	}
	c.seen[sum] = struct{}{}
	return nil
}

// Count returns the number of recorded fingerprints, seed included.
func (c *ChecksumIndex) Count() int { return len(c.seen) }

// Close releases the underlying file handle.
func (c *ChecksumIndex) Close() error { return c.file.Close() }
