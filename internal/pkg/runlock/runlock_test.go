package runlock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "dropbox-timestamp.lock")

	lock := New(lockPath, time.Hour)
	err := lock.Acquire()
	require.NoError(t, err)

	// Lock file exists and records our pid
	holder, err := lock.Info()
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, os.Getpid(), holder.PID)

	err = lock.Release()
	require.NoError(t, err)

	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireHeld(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "dropbox-timestamp.lock")

	first := New(lockPath, time.Hour)
	require.NoError(t, first.Acquire())

	second := New(lockPath, time.Hour)
	err := second.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeld)
}

func TestAcquireReclaimsStale(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "dropbox-timestamp.lock")

	// Simulate a lock left behind by a crashed run.
	err := os.WriteFile(lockPath, []byte(`{"pid":99999,"time":1}`), 0644)
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	lock := New(lockPath, time.Hour)
	err = lock.Acquire()
	require.NoError(t, err)

	holder, err := lock.Info()
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, os.Getpid(), holder.PID)

	require.NoError(t, lock.Release())
}

func TestReleaseMissingFile(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "absent.lock"), time.Hour)
	assert.NoError(t, lock.Release())
}

func TestInfoMissingFile(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "absent.lock"), time.Hour)
	holder, err := lock.Info()
	require.NoError(t, err)
	assert.Nil(t, holder)
}
