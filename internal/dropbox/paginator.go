package dropbox

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/dropbox-collector/internal/event"
)

// EventsPaginator walks the team-log feed one page at a time: an initial
// get_events call for the window, then get_events/continue with the
// returned cursor for as long as the feed reports more data. A window
// with N continuation pages costs exactly N+1 requests.
type EventsPaginator struct {
	client    *Client
	startTime string
	endTime   string
	cursor    string
	firstPage bool
	morePages bool
}

// NewEventsPaginator returns a paginator over [start, end).
func NewEventsPaginator(client *Client, start, end time.Time) *EventsPaginator {
	return &EventsPaginator{
		client:    client,
		startTime: event.FormatAPITime(start),
		endTime:   event.FormatAPITime(end),
		firstPage: true,
		morePages: true,
	}
}

// HasMorePages reports whether another NextPage call will fetch data.
func (p *EventsPaginator) HasMorePages() bool {
	return p.morePages
}

// NextPage fetches the next page of events. The page's HasMore flag is
// trusted as-is: a true flag with an unusable cursor surfaces as an API
// error on the following call rather than being second-guessed here.
func (p *EventsPaginator) NextPage(ctx context.Context) (*EventsPage, error) {
	if !p.morePages {
		return nil, fmt.Errorf("no more pages available")
	}

	var page *EventsPage
	var err error
	if p.firstPage {
		page, err = p.client.GetEvents(ctx, p.startTime, p.endTime)
	} else {
		page, err = p.client.GetEventsContinue(ctx, p.cursor)
	}
	if err != nil {
		return nil, err
	}

	p.firstPage = false
	p.cursor = page.Cursor
	p.morePages = page.HasMore
	return page, nil
}
