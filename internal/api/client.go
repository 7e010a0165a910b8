package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"framereel/internal/jobs"
)

// ErrAPIUnavailable reports that no framereel service answered.
var ErrAPIUnavailable = errors.New("framereel API unavailable")

// StatusError is a non-2xx reply from the service.
type StatusError struct {
	Code    int
	Message string
	Kind    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Message)
}

// Client talks to a running framereel service.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// EventsQuery selects a page of the event stream.
type EventsQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	Tail   bool
}

// NewClient builds a client for the service bound at bind ("host:port" or a URL).
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout - follow mode blocks waiting for events until caller cancels.
		http: &http.Client{},
	}, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Status fetches the service and job status.
func (c *Client) Status(ctx context.Context) (ServiceStatus, error) {
	var out ServiceStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Deps fetches the dependency report.
func (c *Client) Deps(ctx context.Context) (DepsResponse, error) {
	var out DepsResponse
	err := c.do(ctx, http.MethodGet, "/api/deps", nil, nil, &out)
	return out, err
}

// Scan asks the service to detect sequences in path.
func (c *Client) Scan(ctx context.Context, path string) (ScanResponse, error) {
	var out ScanResponse
	err := c.do(ctx, http.MethodPost, "/api/scan", nil, ScanRequest{Path: path}, &out)
	return out, err
}

// Browse lists a directory on the service host.
func (c *Client) Browse(ctx context.Context, path string) (BrowseResponse, error) {
	values := url.Values{}
	if path != "" {
		values.Set("path", path)
	}
	var out BrowseResponse
	err := c.do(ctx, http.MethodGet, "/api/browse", values, nil, &out)
	return out, err
}

// Convert submits a job.
func (c *Client) Convert(ctx context.Context, job jobs.JobConfig) (ConvertResponse, error) {
	var out ConvertResponse
	err := c.do(ctx, http.MethodPost, "/api/convert", nil, job, &out)
	return out, err
}

// Cancel stops the active job.
func (c *Client) Cancel(ctx context.Context) (CancelResponse, error) {
	var out CancelResponse
	err := c.do(ctx, http.MethodPost, "/api/cancel", nil, nil, &out)
	return out, err
}

// Cleanup removes stale staging directories through the service, which keeps
// the active job's directory.
func (c *Client) Cleanup(ctx context.Context, all bool) (CleanupResponse, error) {
	var out CleanupResponse
	err := c.do(ctx, http.MethodPost, "/api/cleanup", nil, CleanupRequest{All: all}, &out)
	return out, err
}

// Events fetches one page of the event stream.
func (c *Client) Events(ctx context.Context, q EventsQuery) (EventsResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	var out EventsResponse
	err := c.do(ctx, http.MethodGet, "/api/events", values, nil, &out)
	return out, err
}

// History lists finished jobs. outcome may be empty.
func (c *Client) History(ctx context.Context, limit int, outcome string) (HistoryResponse, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if strings.TrimSpace(outcome) != "" {
		values.Set("outcome", outcome)
	}
	var out HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/history", values, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Code: resp.StatusCode}
		var payload ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			statusErr.Message = payload.Error
			statusErr.Kind = payload.Kind
		}
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means no service is listening.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
