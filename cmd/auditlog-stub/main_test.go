package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dropbox-collector/internal/config"
	"github.com/ignite/dropbox-collector/internal/dropbox"
	"github.com/ignite/dropbox-collector/internal/event"
)

func newTestStub(t *testing.T, events, pageSize int) (*httptest.Server, time.Time) {
	t.Helper()
	base := time.Date(2025, 8, 23, 8, 0, 0, 0, time.UTC)
	s := newStub("stub-token", pageSize, syntheticFeed(events, base), zerolog.Nop())
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return srv, base
}

func testClient(srv *httptest.Server, token string) *dropbox.Client {
	return dropbox.NewClient(config.APIConfig{BaseURL: srv.URL, TimeoutSeconds: 5}, token)
}

func TestStubPaginatesWholeFeed(t *testing.T) {
	srv, base := newTestStub(t, 5, 2)
	pager := dropbox.NewEventsPaginator(testClient(srv, "stub-token"), base, base.Add(time.Hour))

	var pages int
	var got []event.Event
	for pager.HasMorePages() {
		page, err := pager.NextPage(context.Background())
		require.NoError(t, err)
		pages++
		got = append(got, page.Events...)
	}

	assert.Equal(t, 3, pages)
	require.Len(t, got, 5)
	assert.Equal(t, "2025-08-23T08:00:00Z", got[0]["timestamp"])
	assert.Equal(t, "2025-08-23T08:04:00Z", got[4]["timestamp"])
}

func TestStubFiltersWindow(t *testing.T) {
	srv, base := newTestStub(t, 10, 50)
	client := testClient(srv, "stub-token")

	// Events sit one minute apart, so [base+2m, base+5m) holds three.
	page, err := client.GetEvents(context.Background(),
		event.FormatAPITime(base.Add(2*time.Minute)),
		event.FormatAPITime(base.Add(5*time.Minute)))
	require.NoError(t, err)

	assert.False(t, page.HasMore)
	require.Len(t, page.Events, 3)
	assert.Equal(t, "2025-08-23T08:02:00Z", page.Events[0]["timestamp"])
}

func TestStubRejectsBadToken(t *testing.T) {
	srv, base := newTestStub(t, 3, 10)
	client := testClient(srv, "wrong")

	_, err := client.GetEvents(context.Background(),
		event.FormatAPITime(base), event.FormatAPITime(base.Add(time.Hour)))

	var statusErr *dropbox.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, string(statusErr.Body), "invalid_access_token")
}

func TestStubRejectsUnusableCursors(t *testing.T) {
	srv, _ := newTestStub(t, 3, 10)
	client := testClient(srv, "stub-token")

	var statusErr *dropbox.StatusError

	_, err := client.GetEventsContinue(context.Background(), "bogus")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, string(statusErr.Body), "reset")

	// Well-formed cursor, but no get_events call took a snapshot yet.
	_, err = client.GetEventsContinue(context.Background(), "page-2")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}
