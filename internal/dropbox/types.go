package dropbox

import (
	"fmt"

	"github.com/ignite/dropbox-collector/internal/event"
)

// EventsPage is one page of the team-log feed. HasMore and Cursor drive
// continuation: a page with HasMore set carries the cursor for the next
// get_events/continue call.
type EventsPage struct {
	Events  []event.Event `json:"events"`
	HasMore bool          `json:"has_more"`
	Cursor  string        `json:"cursor"`
}

// StatusError is a non-2xx response from the team-log API. The collector
// treats these as fatal and surfaces the upstream status as its own exit
// code, so a scheduler can tell a 401 from a 429 without parsing logs.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status_code: %d - %s", e.StatusCode, e.Body)
}

// timeRange is the window of a get_events request, wire-format bounds.
type timeRange struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// getEventsRequest is the body of the initial get_events call.
type getEventsRequest struct {
	Time timeRange `json:"time"`
}

// continueRequest is the body of a get_events/continue call.
type continueRequest struct {
	Cursor string `json:"cursor"`
}
