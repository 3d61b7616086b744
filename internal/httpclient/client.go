// Package httpclient provides the HTTP client used for catalog access.
// It validates URLs before requests leave the process and retries
// transient failures, since a multi-day acquisition run should not die
// on one flaky gateway response.
package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/hydrostat/conusflow/errors"
)

const maxRedirects = 10

// Client wraps http.Client with URL validation and bounded retries
type Client struct {
	*http.Client
	attempts int
	backoff  time.Duration
}

// New creates a client with the given per-request timeout. Requests are
// attempted up to three times with linear backoff; only https and http
// URLs are accepted, on first request and on every redirect hop.
func New(timeout time.Duration) *Client {
	c := &Client{
		Client:   &http.Client{Timeout: timeout},
		attempts: 3,
		backoff:  2 * time.Second,
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.Newf("stopped after %d redirects", maxRedirects)
		}
		if err := validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}
	return c
}

// GetWithRetry fetches rawURL, retrying connection errors and 5xx
// responses. 4xx responses are returned to the caller immediately, a
// missing collection will not appear on the next attempt.
func (c *Client) GetWithRetry(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %q", rawURL)
	}
	if err := validateURL(u); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, "could not build request")
		}

		resp, err := c.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = errors.Newf("server returned %s", resp.Status)
		} else {
			return resp, nil
		}

		if attempt < c.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "request failed after %d attempts", c.attempts)
}

func validateURL(u *url.URL) error {
	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.Newf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
