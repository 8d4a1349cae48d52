package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 30 * time.Second
)

// Client fetches live snapshots over HTTP. Transient failures are retried
// with a linear backoff (attempt * backoff) up to maxRetries attempts;
// exhausting retries surfaces the last error to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

func NewClient(baseURL string, maxRetries int, backoff time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Fetch retrieves the current live data, optionally scoped to one or more
// stops. Retries count is reported so the host can track flaky cycles.
func (c *Client) Fetch(ctx context.Context, stopIDs []string) (*LiveResponse, int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.fetchOnce(ctx, stopIDs)
		if err == nil {
			return resp, attempt - 1, nil
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}
		wait := time.Duration(attempt) * c.backoff
		log.Printf("feed fetch failed (attempt %d/%d), retrying in %s: %v", attempt, c.maxRetries, wait, err)
		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, c.maxRetries, fmt.Errorf("fetch failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, stopIDs []string) (*LiveResponse, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	if len(stopIDs) > 0 {
		q := u.Query()
		for _, s := range stopIDs {
			q.Add("stop", s)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("feed returned status %d", res.StatusCode)
	}

	var lr LiveResponse
	if err := json.NewDecoder(res.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode live response: %w", err)
	}
	return &lr, nil
}
