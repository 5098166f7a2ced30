package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 8 << 10

	// baseURL is a placeholder host; every request is dialled over the socket.
	baseURL = "http://lintbridge"
)

var (
	// ErrDaemonUnavailable indicates nothing answers on the admin socket.
	ErrDaemonUnavailable = errors.New("lintbridge daemon is not running")
	// ErrAlertNotFound is returned for unknown or already handled alerts.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrConnectionRemoved is returned when an alert's connection no longer exists.
	ErrConnectionRemoved = errors.New("connection removed")
)

// HTTPClient wraps HTTP interactions with the daemon admin socket.
type HTTPClient struct {
	socketPath string
	client     *http.Client
}

// NewHTTPClient builds a client that dials socketPath for every request.
func NewHTTPClient(socketPath string) *HTTPClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &HTTPClient{
		socketPath: socketPath,
		client:     &http.Client{Timeout: defaultHTTPTimeout, Transport: transport},
	}
}

// SocketPath returns the admin socket this client talks to.
func (c *HTTPClient) SocketPath() string {
	return c.socketPath
}

func (c *HTTPClient) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) == 0 {
		return errors.New(resp.Status)
	}
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			if msg := strings.TrimSpace(payload.Error); msg != "" {
				return errors.New(msg)
			}
		}
	}
	return errors.New(trimmed)
}
