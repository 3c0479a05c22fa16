package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dropbox-collector/internal/config"
	"github.com/ignite/dropbox-collector/internal/dropbox"
	"github.com/ignite/dropbox-collector/internal/pkg/runlock"
	"github.com/ignite/dropbox-collector/internal/store"
)

// upstream is a scripted team-log fake: each request pops the next
// canned response and records what the collector sent.
type upstream struct {
	t         *testing.T
	responses []string
	paths     []string
	bodies    []string
}

func (u *upstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.paths = append(u.paths, r.URL.Path)
		u.bodies = append(u.bodies, string(body))
		if len(u.responses) == 0 {
			u.t.Errorf("unexpected request %d to %s", len(u.paths), r.URL.Path)
			w.Write([]byte(`{"events":[],"has_more":false}`))
			return
		}
		resp := u.responses[0]
		u.responses = u.responses[1:]
		w.Write([]byte(resp))
	}
}

func newTestRunner(t *testing.T, baseURL, cacheDir string, now time.Time) *Runner {
	t.Helper()
	cfg := config.Default()
	cfg.CacheDir = cacheDir
	cfg.API.BaseURL = baseURL
	cfg.API.TimeoutSeconds = 5

	runner := NewRunner(cfg, dropbox.NewClient(cfg.API, "sl.test"), zerolog.Nop())
	runner.SetClock(func() time.Time { return now })
	return runner
}

func fileLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestRunFreshCache(t *testing.T) {
	up := &upstream{t: t, responses: []string{
		`{"events":[
			{"timestamp":"2025-08-23T10:00:00Z","event_type":"login","actor":"alice"},
			{"timestamp":"2025-08-23T11:00:00Z","event_type":"logout","actor":"bob"}
		],"has_more":false}`,
	}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	cacheDir := t.TempDir()
	now := time.Date(2025, 8, 23, 14, 5, 6, 0, time.UTC)
	runner := newTestRunner(t, server.URL, cacheDir, now)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, "2025-08-23T14:05:06Z", summary.Watermark)
	assert.NotEmpty(t, summary.RunID)

	// Fresh cache has no watermark: the window starts at midnight UTC
	var req struct {
		Time struct {
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		} `json:"time"`
	}
	require.NoError(t, json.Unmarshal([]byte(up.bodies[0]), &req))
	assert.Equal(t, "2025-08-23T00:00:00Z", req.Time.StartTime)
	assert.Equal(t, "2025-08-23T14:05:06Z", req.Time.EndTime)

	layout := store.NewLayout(cacheDir)
	logLines := fileLines(t, layout.LogFile(now))
	require.Len(t, logLines, 2)

	// Appended lines are the normalized events
	var archived map[string]any
	require.NoError(t, json.Unmarshal([]byte(logLines[0]), &archived))
	assert.Equal(t, "login", archived["event_type"])
	assert.Equal(t, "2025-08-23 10:00:00 UTC", archived["original_timestamp"])
	assert.Contains(t, archived, "adjusted_timestamp")

	// Index holds the seed plus one fingerprint per written event
	sumLines := fileLines(t, layout.SumsFile(now))
	require.Len(t, sumLines, 3)
	assert.Equal(t, store.SeedChecksum(layout.SumsFile(now)), sumLines[0])

	// Watermark file records the run start
	wm, err := store.NewWatermark(layout.WatermarkFile()).Read(now)
	require.NoError(t, err)
	assert.Equal(t, now, wm)

	// Run lock was released
	_, err = os.Stat(layout.RunLockFile())
	assert.True(t, os.IsNotExist(err))
}

func TestRunSecondRunIsIdempotent(t *testing.T) {
	page := `{"events":[
		{"timestamp":"2025-08-23T10:00:00Z","event_type":"login","actor":"alice"},
		{"timestamp":"2025-08-23T11:00:00Z","event_type":"logout","actor":"bob"}
	],"has_more":false}`

	up := &upstream{t: t, responses: []string{page, page}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	cacheDir := t.TempDir()
	first := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)

	_, err := newTestRunner(t, server.URL, cacheDir, first).Run(context.Background())
	require.NoError(t, err)

	// Second run an hour later sees the same upstream events again
	summary, err := newTestRunner(t, server.URL, cacheDir, first.Add(time.Hour)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 0, summary.Written)
	assert.Equal(t, 2, summary.Skipped)

	// The second window starts where the first run started
	assert.Contains(t, up.bodies[1], `"start_time":"2025-08-23T14:00:00Z"`)

	layout := store.NewLayout(cacheDir)
	assert.Len(t, fileLines(t, layout.LogFile(first)), 2)
	assert.Len(t, fileLines(t, layout.SumsFile(first)), 3)
}

func TestRunSuppressesDuplicateWithinRun(t *testing.T) {
	// The same event appears on both pages of a single run
	up := &upstream{t: t, responses: []string{
		`{"events":[{"timestamp":"2025-08-23T10:00:00Z","event_type":"login"}],"has_more":true,"cursor":"c1"}`,
		`{"events":[{"timestamp":"2025-08-23T10:00:00Z","event_type":"login"}],"has_more":false}`,
	}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	cacheDir := t.TempDir()
	now := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)

	summary, err := newTestRunner(t, server.URL, cacheDir, now).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, fileLines(t, store.NewLayout(cacheDir).LogFile(now)), 1)
}

func TestRunStampsOverride(t *testing.T) {
	up := &upstream{t: t, responses: []string{`{"events":[],"has_more":false}`}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	now := time.Date(2025, 8, 23, 14, 5, 6, 0, time.UTC)
	runner := newTestRunner(t, server.URL, t.TempDir(), now)
	runner.SetStamps("2025-08-01T00:00:00Z#2025-08-02T00:00:00Z")

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, up.bodies[0], `"start_time":"2025-08-01T00:00:00Z"`)
	assert.Contains(t, up.bodies[0], `"end_time":"2025-08-02T00:00:00Z"`)

	// The watermark still records the run start, not the override
	assert.Equal(t, "2025-08-23T14:05:06Z", summary.Watermark)
}

func TestRunRangeWindow(t *testing.T) {
	up := &upstream{t: t, responses: []string{`{"events":[],"has_more":false}`}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	now := time.Date(2025, 8, 23, 14, 5, 6, 0, time.UTC)
	runner := newTestRunner(t, server.URL, t.TempDir(), now)
	runner.cfg.TimeRange = "12h"

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, up.bodies[0], `"start_time":"2025-08-23T02:05:06Z"`)
	assert.Contains(t, up.bodies[0], `"end_time":"2025-08-23T14:05:06Z"`)
}

func TestRunMalformedTimestampAborts(t *testing.T) {
	up := &upstream{t: t, responses: []string{
		`{"events":[
			{"timestamp":"2025-08-23T10:00:00Z","event_type":"login"},
			{"timestamp":"not-a-date","event_type":"logout"}
		],"has_more":false}`,
	}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	cacheDir := t.TempDir()
	now := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)

	_, err := newTestRunner(t, server.URL, cacheDir, now).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-date")

	// The good event before the bad one was appended, the bad one was not
	layout := store.NewLayout(cacheDir)
	lines := fileLines(t, layout.LogFile(now))
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"event_type":"login"`)

	// The watermark stayed advanced despite the failure
	wm, err := store.NewWatermark(layout.WatermarkFile()).Read(now)
	require.NoError(t, err)
	assert.Equal(t, now, wm)
}

func TestRunUpstreamErrorAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error_summary":"invalid_access_token/.."}`))
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	now := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)

	_, err := newTestRunner(t, server.URL, cacheDir, now).Run(context.Background())
	require.Error(t, err)

	var statusErr *dropbox.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	// Watermark was advanced before the fetch failed
	layout := store.NewLayout(cacheDir)
	wm, err := store.NewWatermark(layout.WatermarkFile()).Read(now)
	require.NoError(t, err)
	assert.Equal(t, now, wm)

	// The failed run still released its lock
	_, err = os.Stat(layout.RunLockFile())
	assert.True(t, os.IsNotExist(err))
}

func TestRunRefusedWhileLockHeld(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected while the lock is held")
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	now := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)

	layout := store.NewLayout(cacheDir)
	require.NoError(t, layout.EnsureDirs())
	held := runlock.New(layout.RunLockFile(), time.Hour)
	require.NoError(t, held.Acquire())
	defer held.Release()

	_, err := newTestRunner(t, server.URL, cacheDir, now).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, runlock.ErrHeld)
}

type fakeArchiver struct {
	days []time.Time
	err  error
}

func (f *fakeArchiver) UploadDay(ctx context.Context, layout store.Layout, day time.Time) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.days = append(f.days, day)
	return []string{"auditlog/2025/08/23/dropbox-downloads.20250823.log"}, nil
}

func TestRunArchivesAfterCleanRun(t *testing.T) {
	up := &upstream{t: t, responses: []string{
		`{"events":[{"timestamp":"2025-08-23T10:00:00Z","event_type":"login"}],"has_more":false}`,
	}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	now := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)
	runner := newTestRunner(t, server.URL, t.TempDir(), now)

	arch := &fakeArchiver{}
	runner.SetArchiver(arch)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, arch.days, 1)
	assert.Equal(t, now, arch.days[0])
}

func TestRunArchiveFailureSurfaces(t *testing.T) {
	up := &upstream{t: t, responses: []string{`{"events":[],"has_more":false}`}}
	server := httptest.NewServer(up.handler())
	defer server.Close()

	now := time.Date(2025, 8, 23, 14, 0, 0, 0, time.UTC)
	runner := newTestRunner(t, server.URL, t.TempDir(), now)
	runner.SetArchiver(&fakeArchiver{err: errors.New("AccessDenied")})

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archiving day files")
}
