// Package serverapi talks to the web API of a configured analysis server:
// capability probing, developer event polling and hotspot lookup.
package serverapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/version"
)

var (
	// ErrUnavailable marks network failures and 5xx responses.
	ErrUnavailable = errors.New("serverapi: server unavailable")
	// ErrNotFound marks 404 responses.
	ErrNotFound = errors.New("serverapi: not found")
	// ErrUnauthorized marks 401 and 403 responses.
	ErrUnauthorized = errors.New("serverapi: unauthorized")
)

const (
	defaultMaxTries = 3
	maxResponseSize = 4 << 20
)

// Client issues requests against server connections.
type Client struct {
	http       *http.Client
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithMaxTries bounds the number of attempts for retryable failures.
func WithMaxTries(n uint) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithBackOff overrides the retry delay policy.
func WithBackOff(factory func() backoff.BackOff) ClientOption {
	return func(c *Client) {
		if factory != nil {
			c.newBackOff = factory
		}
	}
}

// New creates a Client.
func New(opts ...ClientOption) *Client {
	c := &Client{
		http:     &http.Client{Timeout: constants.RemoteRequestTimeout},
		maxTries: defaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = constants.Duration500Milliseconds
			b.MaxInterval = constants.Duration2Seconds
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON performs a GET with retries on ErrUnavailable and decodes a 200
// response into out. Other statuses fail immediately.
func (c *Client) getJSON(ctx context.Context, conn store.ServerConnection, path string, query url.Values, out any) error {
	return c.getJSONTries(ctx, conn, path, query, out, c.maxTries)
}

// getJSONTries is getJSON with an explicit attempt bound. A bound of 1
// issues a single request.
func (c *Client) getJSONTries(ctx context.Context, conn store.ServerConnection, path string, query url.Values, out any, tries uint) error {
	endpoint, err := buildURL(conn.HostURL, path, query)
	if err != nil {
		return err
	}

	operation := func() (struct{}, error) {
		body, err := c.fetch(ctx, conn, endpoint)
		if err != nil {
			return struct{}{}, err
		}
		if out == nil {
			return struct{}{}, nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("serverapi: decode %s: %w", path, err))
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(tries),
	)
	return err
}

func (c *Client) fetch(ctx context.Context, conn store.ServerConnection, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("serverapi: create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if conn.Token != "" {
		req.SetBasicAuth(conn.Token, "")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnavailable, req.URL.Path, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s returned %d", ErrUnauthorized, req.URL.Path, resp.StatusCode))
	default:
		return nil, backoff.Permanent(fmt.Errorf("serverapi: %s returned %d", req.URL.Path, resp.StatusCode))
	}
}

func buildURL(hostURL, path string, query url.Values) (string, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(hostURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("serverapi: invalid host url %q", hostURL)
	}
	base.Path += path
	base.RawQuery = query.Encode()
	return base.String(), nil
}
