// Package http holds the JSON payloads exchanged between the daemon's admin
// API and the lintbridge CLI.
package http

import "time"

// ControlState describes the loopback control server.
type ControlState struct {
	State   string `json:"state"`
	Port    int    `json:"port,omitempty"`
	Enabled bool   `json:"enabled"`
}

// ProjectState reports the notification subscription of one project.
type ProjectState struct {
	Name       string `json:"name"`
	Open       bool   `json:"open"`
	Connection string `json:"connection,omitempty"`
	ProjectKey string `json:"project_key,omitempty"`
	Subscribed bool   `json:"subscribed"`
	Registered bool   `json:"registered"`
	LastPoll   string `json:"last_poll,omitempty"`
}

// NotificationsState summarises the event poller.
type NotificationsState struct {
	Enabled       bool   `json:"enabled"`
	PollInterval  string `json:"poll_interval"`
	Registrations int    `json:"registrations"`
	Polls         uint64 `json:"polls"`
}

// StateResponse is returned by GET /v1/state.
type StateResponse struct {
	Version       string             `json:"version"`
	IDE           string             `json:"ide"`
	StartedAt     time.Time          `json:"started_at"`
	Control       ControlState       `json:"control"`
	Notifications NotificationsState `json:"notifications"`
	Projects      []ProjectState     `json:"projects"`
}

// Alert mirrors a notification alert raised from a server event.
type Alert struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Connection string    `json:"connection"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Link       string    `json:"link,omitempty"`
	Brand      string    `json:"brand"`
	Actions    []string  `json:"actions"`
	ReceivedAt time.Time `json:"received_at"`
}

// AlertsResponse is returned by GET /v1/alerts.
type AlertsResponse struct {
	Alerts []Alert `json:"alerts"`
}

// ConfigureResponse is returned by POST /v1/alerts/{id}/configure.
type ConfigureResponse struct {
	Connection string `json:"connection"`
	HostURL    string `json:"host_url"`
	Focus      string `json:"focus"`
}

// TelemetryResponse is returned by GET /v1/telemetry.
type TelemetryResponse struct {
	Counters map[string]uint64 `json:"counters"`
}

// HotspotRequest describes a hotspot the IDE was asked to show.
type HotspotRequest struct {
	Project    string `json:"project,omitempty"`
	ProjectKey string `json:"project_key"`
	HotspotKey string `json:"hotspot_key"`
	ServerURL  string `json:"server_url"`
	Message    string `json:"message,omitempty"`
	Component  string `json:"component,omitempty"`
	Line       int    `json:"line,omitempty"`
	Status     string `json:"status,omitempty"`
	RuleKey    string `json:"rule_key,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Stream entry types sent over GET /v1/events.
const (
	StreamAlert         = "alert"
	StreamAlertState    = "alert_state"
	StreamHotspot       = "hotspot"
	StreamHotspotFailed = "hotspot_failed"
	StreamControl       = "control"
)

// StreamEntry is one message on the events websocket.
type StreamEntry struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Alert     *Alert          `json:"alert,omitempty"`
	AlertID   string          `json:"alert_id,omitempty"`
	State     string          `json:"state,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Hotspot   *HotspotRequest `json:"hotspot,omitempty"`
	Port      int             `json:"port,omitempty"`
}

// ErrorResponse is the body of every non-2xx admin API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
