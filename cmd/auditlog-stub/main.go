// Command auditlog-stub serves a fake Dropbox team-log endpoint for
// exercising the collector without touching the real service:
//
//	auditlog-stub --events 40 --page-size 10 &
//	DROPBOX_API_BASE_URL=http://localhost:8080 dropbox-collector -t stub-token
//
// The synthetic feed is deterministic: events sit a minute apart at the
// start of the current UTC day, so a default watermark run covers all
// of them and a second run deduplicates every one.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ignite/dropbox-collector/internal/dropbox"
	"github.com/ignite/dropbox-collector/internal/event"
	"github.com/ignite/dropbox-collector/internal/pkg/httputil"
	"github.com/ignite/dropbox-collector/internal/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "auditlog-stub: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr      string
		token     string
		events    int
		pageSize  int
		verbosity int
	)

	cmd := &cobra.Command{
		Use:           "auditlog-stub",
		Short:         "Serve a fake Dropbox team-log API with synthetic events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New("auditlog-stub", verbosity)
			base := time.Now().UTC().Truncate(24 * time.Hour)
			s := newStub(token, pageSize, syntheticFeed(events, base), log)

			srv := &http.Server{
				Addr:         addr,
				Handler:      s.routes(),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().
					Str("addr", addr).
					Int("events", events).
					Int("page_size", pageSize).
					Msg("serving synthetic team-log feed")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":8080", "listen address")
	flags.StringVar(&token, "token", "stub-token", "bearer token the stub accepts")
	flags.IntVar(&events, "events", 25, "size of the synthetic event set")
	flags.IntVar(&pageSize, "page-size", 10, "events per page")
	flags.IntVarP(&verbosity, "verbose", "v", 0, "verbosity, debug above 3 and trace above 7")
	return cmd
}

// feedEvent pairs an event body with its parsed timestamp so window
// filtering does not have to re-parse the wire stamp.
type feedEvent struct {
	at   time.Time
	body event.Event
}

// stub pages a fixed event set the way the team-log API does. A
// get_events call snapshots the window it matched; page-<n> cursors
// index into that snapshot, so the stub serves one collector at a time.
type stub struct {
	token    string
	pageSize int
	feed     []feedEvent
	log      zerolog.Logger

	mu       sync.Mutex
	snapshot []event.Event
}

func newStub(token string, pageSize int, feed []feedEvent, log zerolog.Logger) *stub {
	return &stub{
		token:    token,
		pageSize: pageSize,
		feed:     feed,
		log:      log.With().Str("component", "stub").Logger(),
	}
}

func (s *stub) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "auditlog-stub"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/2/team_log/get_events", s.handleGetEvents)
		r.Post("/2/team_log/get_events/continue", s.handleContinue)
	})
	return r
}

func (s *stub) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			s.log.Warn().Str("path", r.URL.Path).Msg("rejecting request with bad bearer token")
			httputil.Error(w, http.StatusUnauthorized, "invalid_access_token", "the bearer token is not valid for this stub")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type eventsArgs struct {
	Time struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	} `json:"time"`
}

type continueArgs struct {
	Cursor string `json:"cursor"`
}

func (s *stub) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	var args eventsArgs
	if !httputil.Decode(w, r, &args) {
		return
	}

	var start, end time.Time
	var err error
	if args.Time.StartTime != "" {
		if start, err = event.ParseAPITime(args.Time.StartTime); err != nil {
			httputil.Error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	if args.Time.EndTime != "" {
		if end, err = event.ParseAPITime(args.Time.EndTime); err != nil {
			httputil.Error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}

	matched := s.eventsBetween(start, end)
	s.mu.Lock()
	s.snapshot = matched
	s.mu.Unlock()

	s.log.Debug().
		Str("start", args.Time.StartTime).
		Str("end", args.Time.EndTime).
		Int("matched", len(matched)).
		Msg("get_events")
	s.writePage(w, matched, 0)
}

func (s *stub) handleContinue(w http.ResponseWriter, r *http.Request) {
	var args continueArgs
	if !httputil.Decode(w, r, &args) {
		return
	}

	n, ok := pageNumber(args.Cursor)
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "reset", "unrecognized cursor "+args.Cursor)
		return
	}

	s.mu.Lock()
	snapshot := s.snapshot
	s.mu.Unlock()
	if snapshot == nil {
		httputil.Error(w, http.StatusBadRequest, "reset", "no get_events call preceded this cursor")
		return
	}

	s.log.Debug().Str("cursor", args.Cursor).Msg("get_events/continue")
	s.writePage(w, snapshot, (n-1)*s.pageSize)
}

// eventsBetween returns the feed events inside [start, end); a zero
// bound is open.
func (s *stub) eventsBetween(start, end time.Time) []event.Event {
	out := make([]event.Event, 0, len(s.feed))
	for _, fe := range s.feed {
		if !start.IsZero() && fe.at.Before(start) {
			continue
		}
		if !end.IsZero() && !fe.at.Before(end) {
			continue
		}
		out = append(out, fe.body)
	}
	return out
}

// writePage serves the slice of snapshot starting at offset. Full pages
// carry a cursor naming the next page; the final page has has_more
// false and no cursor.
func (s *stub) writePage(w http.ResponseWriter, snapshot []event.Event, offset int) {
	if offset > len(snapshot) {
		offset = len(snapshot)
	}
	stop := offset + s.pageSize
	if stop > len(snapshot) {
		stop = len(snapshot)
	}

	page := dropbox.EventsPage{
		Events:  snapshot[offset:stop],
		HasMore: stop < len(snapshot),
	}
	if page.HasMore {
		page.Cursor = fmt.Sprintf("page-%d", stop/s.pageSize+1)
	}
	httputil.JSON(w, http.StatusOK, page)
}

// pageNumber decodes a page-<n> cursor. Page 1 is only ever served by
// get_events itself, so cursors start at 2.
func pageNumber(cursor string) (int, bool) {
	rest, ok := strings.CutPrefix(cursor, "page-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 2 {
		return 0, false
	}
	return n, true
}

// syntheticFeed builds n events a minute apart from base, cycling
// through a fixed cast of members and event kinds. Content depends only
// on the index, so every stub run serves identical bodies and repeated
// collector runs deduplicate them.
func syntheticFeed(n int, base time.Time) []feedEvent {
	kinds := []struct {
		tag, category, description string
	}{
		{"login_success", "logins", "Signed in"},
		{"file_downloaded", "file_operations", "Downloaded files"},
		{"shared_link_create", "sharing", "Created shared link"},
		{"member_change_status", "members", "Changed member status"},
	}
	members := []string{"Ada Crane", "Bo Lindqvist", "Cleo Marsh", "Dev Okafor", "Eli Tanaka"}

	feed := make([]feedEvent, 0, n)
	for i := 0; i < n; i++ {
		k := kinds[i%len(kinds)]
		m := i % len(members)
		at := base.Add(time.Duration(i) * time.Minute)
		body := event.Event{
			"timestamp":      at.Format(event.APITimeLayout),
			"event_category": map[string]any{".tag": k.category},
			"event_type":     map[string]any{".tag": k.tag, "description": k.description},
			"actor": map[string]any{
				".tag": "user",
				"user": map[string]any{
					".tag":           "team_member",
					"account_id":     fmt.Sprintf("dbid:stub-%04d", m),
					"team_member_id": fmt.Sprintf("dbmid:stub-%04d", m),
					"display_name":   members[m],
					"email":          fmt.Sprintf("member%d@example.com", m),
				},
			},
			"involve_non_team_member": false,
		}
		feed = append(feed, feedEvent{at: at, body: body})
	}
	return feed
}
