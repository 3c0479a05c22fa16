// Package dropbox is a minimal client for the Dropbox Business team-log
// API: the get_events / get_events/continue pair, with cursor pagination.
//
// There is deliberately no retry or backoff here. The collector runs
// from a scheduler; a failed run exits loudly and the next run re-covers
// the window from its watermark.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/dropbox-collector/internal/config"
)

const (
	getEventsPath         = "/2/team_log/get_events"
	getEventsContinuePath = "/2/team_log/get_events/continue"
)

// HTTPDoer executes HTTP requests. Satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a Dropbox team-log API client
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  HTTPDoer
}

// NewClient creates a new team-log API client
func NewClient(cfg config.APIConfig, bearerToken string) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		bearerToken: bearerToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// GetEvents fetches the first page of events in [startTime, endTime),
// both in wire format.
func (c *Client) GetEvents(ctx context.Context, startTime, endTime string) (*EventsPage, error) {
	body := getEventsRequest{Time: timeRange{StartTime: startTime, EndTime: endTime}}
	return c.doRequest(ctx, getEventsPath, body)
}

// GetEventsContinue fetches the next page of events for a cursor.
func (c *Client) GetEventsContinue(ctx context.Context, cursor string) (*EventsPage, error) {
	return c.doRequest(ctx, getEventsContinuePath, continueRequest{Cursor: cursor})
}

// doRequest performs an authenticated POST to the team-log API and
// decodes the page envelope. Numbers inside events are decoded as
// json.Number so the archived lines reproduce the wire literals.
func (c *Client) doRequest(ctx context.Context, path string, body interface{}) (*EventsPage, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var page EventsPage
	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &page, nil
}
