// Package executor creates time entries from an artifact without ever
// creating duplicates: every proposal is existence-checked against the
// time-tracking service before it is written.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/sussdorff/timetally/internal/core/config"
)

// Entry is one time entry to create in the time-tracking service.
type Entry struct {
	ProjectID string    `json:"project"`
	Start     time.Time `json:"startDate"`
	End       time.Time `json:"endDate"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
}

// RateLimitError reports a 429 from the service. The executor backs off
// and requeues instead of failing the run.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Client talks to the time-tracking service.
type Client interface {
	// EntryExists reports whether an entry for the project already covers
	// the given interval.
	EntryExists(ctx context.Context, projectID string, start, end time.Time) (bool, error)
	CreateEntry(ctx context.Context, entry Entry) error
}

// HTTPClient implements Client against the service's REST API.
type HTTPClient struct {
	base   string
	token  string
	client *retryablehttp.Client
}

// NewHTTPClient builds a client from the timing service configuration.
// Transient 5xx responses are retried transparently; 429 is never retried
// here, it surfaces as RateLimitError so the executor controls the pace.
func NewHTTPClient(cfg config.Timing) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = cfg.RequestTimeout()
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return &HTTPClient{
		base:   cfg.APIURL,
		token:  cfg.APIToken,
		client: rc,
	}
}

func (c *HTTPClient) EntryExists(ctx context.Context, projectID string, start, end time.Time) (bool, error) {
	q := url.Values{}
	q.Set("project", projectID)
	q.Set("from", start.Format(time.RFC3339))
	q.Set("to", end.Format(time.RFC3339))

	body, err := c.do(ctx, http.MethodGet, "/time-entries?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}

	entries := gjson.GetBytes(body, "entries")
	if !entries.Exists() {
		entries = gjson.ParseBytes(body)
	}
	return entries.IsArray() && len(entries.Array()) > 0, nil
}

func (c *HTTPClient) CreateEntry(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/time-entries", payload)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return data, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Minute
}
