// Package client talks to a running lintbridge daemon over its local
// sockets.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	apihttp "github.com/codescan-io/lintbridge/internal/api/http"
	"github.com/codescan-io/lintbridge/internal/config"
)

const websocketHandshakeTimeout = 10 * time.Second

// Client communicates with the daemon admin API and its event stream.
type Client struct {
	*HTTPClient
	healthSocket string
	dialer       *websocket.Dialer
}

// New returns a client for the sockets of instance.
func New(instance string) *Client {
	paths := config.GetInstancePaths(instance)
	return NewForSockets(paths.Socket, paths.HealthSocket)
}

// NewForSockets returns a client for explicit socket paths.
func NewForSockets(adminSocket, healthSocket string) *Client {
	return &Client{
		HTTPClient:   NewHTTPClient(adminSocket),
		healthSocket: healthSocket,
		dialer: &websocket.Dialer{
			HandshakeTimeout: websocketHandshakeTimeout,
			NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", adminSocket)
			},
		},
	}
}

// State returns the daemon runtime state.
func (c *Client) State(ctx context.Context) (apihttp.StateResponse, error) {
	var out apihttp.StateResponse
	if err := c.getJSON(ctx, "/v1/state", &out); err != nil {
		return out, fmt.Errorf("daemon state: %w", err)
	}
	return out, nil
}

// Alerts lists the alerts the daemon still holds.
func (c *Client) Alerts(ctx context.Context) ([]apihttp.Alert, error) {
	var out apihttp.AlertsResponse
	if err := c.getJSON(ctx, "/v1/alerts", &out); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out.Alerts, nil
}

// Telemetry returns the usage counters.
func (c *Client) Telemetry(ctx context.Context) (map[string]uint64, error) {
	var out apihttp.TelemetryResponse
	if err := c.getJSON(ctx, "/v1/telemetry", &out); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return out.Counters, nil
}

// OpenAlert follows the link of an alert.
func (c *Client) OpenAlert(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/alerts/"+url.PathEscape(id)+"/open")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("open alert %s: %w", id, ErrAlertNotFound)
	default:
		return fmt.Errorf("open alert %s: %w", id, readAPIError(resp))
	}
}

// ConfigureAlert resolves the connection editor target of an alert.
func (c *Client) ConfigureAlert(ctx context.Context, id string) (apihttp.ConfigureResponse, error) {
	var out apihttp.ConfigureResponse
	resp, err := c.do(ctx, http.MethodPost, "/v1/alerts/"+url.PathEscape(id)+"/configure")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return out, fmt.Errorf("configure alert %s: %w", id, err)
		}
		return out, nil
	case http.StatusNotFound:
		return out, fmt.Errorf("configure alert %s: %w", id, ErrAlertNotFound)
	case http.StatusGone:
		return out, fmt.Errorf("configure alert %s: %w: %w", id, ErrConnectionRemoved, readAPIError(resp))
	default:
		return out, fmt.Errorf("configure alert %s: %w", id, readAPIError(resp))
	}
}

// PollNow asks the event poller to run immediately.
func (c *Client) PollNow(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/notifications/poll")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("poll now: %w", readAPIError(resp))
	}
	return nil
}

// ShutdownDaemon requests a graceful daemon shutdown.
func (c *Client) ShutdownDaemon(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/daemon/shutdown")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("shutdown daemon: %w", readAPIError(resp))
	}
	return nil
}

// Events streams daemon events to fn until ctx is done, the daemon closes
// the stream or fn returns an error.
func (c *Client) Events(ctx context.Context, fn func(apihttp.StreamEntry) error) error {
	conn, _, err := c.dialer.DialContext(ctx, "ws://lintbridge/v1/events", nil)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		var entry apihttp.StreamEntry
		if err := conn.ReadJSON(&entry); err != nil {
			if ctx.Err() != nil || isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}

func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, io.EOF)
}
