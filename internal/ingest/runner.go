package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ignite/dropbox-collector/internal/config"
	"github.com/ignite/dropbox-collector/internal/dropbox"
	"github.com/ignite/dropbox-collector/internal/event"
	"github.com/ignite/dropbox-collector/internal/pkg/runlock"
	"github.com/ignite/dropbox-collector/internal/store"
)

// Archiver uploads the day files after a clean run. Satisfied by
// *archive.Uploader.
type Archiver interface {
	UploadDay(ctx context.Context, layout store.Layout, day time.Time) ([]string, error)
}

// Summary is the outcome of one run.
type Summary struct {
	RunID     string
	Window    Window
	Pages     int
	Fetched   int
	Written   int
	Skipped   int
	Watermark string
	Elapsed   time.Duration
}

// Runner executes one collection run against a cache directory. Runs on
// the same directory are serialized through the run lock; everything
// inside a run is strictly sequential.
type Runner struct {
	cfg    *config.Config
	client *dropbox.Client
	layout store.Layout
	log    zerolog.Logger

	archiver   Archiver
	stamps     string
	normalizer event.Normalizer
	now        func() time.Time
}

// NewRunner wires a run over the given configuration and API client.
func NewRunner(cfg *config.Config, client *dropbox.Client, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		client: client,
		layout: store.NewLayout(cfg.CacheDir),
		log:    log.With().Str("component", "ingest").Logger(),
		now:    time.Now,
	}
}

// SetArchiver enables S3 upload of the day files after a clean run.
func (r *Runner) SetArchiver(a Archiver) { r.archiver = a }

// SetStamps replaces the computed window with an explicit "start#end"
// pair. The watermark is still advanced at run start.
func (r *Runner) SetStamps(stamps string) { r.stamps = stamps }

// SetClock sets the wall-clock source (useful for testing).
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run performs one collection run: resolve the window, advance the
// watermark, then fetch, normalize, dedup, and append page by page.
//
// The watermark moves to the run's start time before the first fetch.
// Windows of consecutive runs therefore never overlap, but a run that
// dies mid-pagination permanently skips whatever it had not fetched
// yet; re-covering such a gap takes an explicit stamp-pair run. Errors
// after the watermark write leave it advanced on purpose.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := r.now()
	runID := uuid.New().String()
	log := r.log.With().Str("run_id", runID).Logger()

	if err := r.layout.EnsureDirs(); err != nil {
		return nil, err
	}

	lock := runlock.New(r.layout.RunLockFile(), r.cfg.Lock.TTL())
	if err := lock.Acquire(); err != nil {
		return nil, fmt.Errorf("serializing runs on %s: %w", r.cfg.CacheDir, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("releasing run lock")
		}
	}()

	window, source, err := r.resolveWindow(started)
	if err != nil {
		return nil, err
	}

	watermark, err := store.NewWatermark(r.layout.WatermarkFile()).Write(started)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("window_start", event.FormatAPITime(window.Start)).
		Str("window_end", event.FormatAPITime(window.End)).
		Str("window_source", source).
		Str("watermark", watermark).
		Msg("run started")

	// The day partition is fixed here: a run crossing midnight keeps
	// appending to its start day's files.
	day := started
	index, err := store.OpenChecksumIndex(r.layout.SumsFile(day))
	if err != nil {
		return nil, err
	}
	defer index.Close()

	eventLog, err := store.OpenEventLog(r.layout.LogFile(day))
	if err != nil {
		return nil, err
	}
	defer eventLog.Close()

	summary := &Summary{RunID: runID, Window: window, Watermark: watermark}

	paginator := dropbox.NewEventsPaginator(r.client, window.Start, window.End)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching events page %d: %w", summary.Pages+1, err)
		}
		summary.Pages++
		summary.Fetched += len(page.Events)
		log.Debug().
			Int("page", summary.Pages).
			Int("events", len(page.Events)).
			Bool("has_more", page.HasMore).
			Msg("page fetched")

		for _, ev := range page.Events {
			if err := r.normalizer.Normalize(ev); err != nil {
				return nil, fmt.Errorf("page %d: %w", summary.Pages, err)
			}
			line, err := ev.Canonical()
			if err != nil {
				return nil, err
			}
			checksum := event.Checksum(line)
			if index.Contains(checksum) {
				summary.Skipped++
				log.Trace().Str("checksum", checksum).Msg("duplicate event skipped")
				continue
			}
			if err := eventLog.Append(line); err != nil {
				return nil, err
			}
			if err := index.Record(checksum); err != nil {
				return nil, err
			}
			summary.Written++
		}
	}

	if r.archiver != nil {
		keys, err := r.archiver.UploadDay(ctx, r.layout, day)
		if err != nil {
			return nil, fmt.Errorf("archiving day files: %w", err)
		}
		log.Info().Strs("keys", keys).Msg("day files archived")
	}

	summary.Elapsed = r.now().Sub(started)
	log.Info().
		Int("pages", summary.Pages).
		Int("fetched", summary.Fetched).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Dur("elapsed", summary.Elapsed).
		Msg("run complete")
	return summary, nil
}

// resolveWindow picks the run's fetch window: an explicit stamp pair
// wins, then the configured range back from now, then the stored
// watermark.
func (r *Runner) resolveWindow(now time.Time) (Window, string, error) {
	if r.stamps != "" {
		w, err := ParseStamps(r.stamps)
		if err != nil {
			return Window{}, "", err
		}
		return w, "stamps", nil
	}

	end := now.UTC().Truncate(time.Second)
	if r.cfg.TimeRange != "" {
		d, err := ParseRange(r.cfg.TimeRange)
		if err != nil {
			return Window{}, "", err
		}
		return Window{Start: end.Add(-d), End: end}, "range", nil
	}

	start, err := store.NewWatermark(r.layout.WatermarkFile()).Read(now)
	if err != nil {
		return Window{}, "", err
	}
	return Window{Start: start, End: end}, "watermark", nil
}
