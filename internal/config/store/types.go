package store

import (
	"net/url"
	"strings"
	"time"
)

// ServerConnection describes a configured remote analysis server.
// Name is unique within the store.
type ServerConnection struct {
	Name                  string    `json:"name"`
	HostURL               string    `json:"host_url"`
	Token                 string    `json:"-"`
	Organization          string    `json:"organization,omitempty"`
	IsCloud               bool      `json:"is_cloud"`
	NotificationsDisabled bool      `json:"notifications_disabled"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Host returns the lower-cased host name of HostURL without port, or "" when
// the URL cannot be parsed.
func (c ServerConnection) Host() string {
	u, err := url.Parse(strings.TrimSpace(c.HostURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Project is a local workspace that may be bound to a remote project key on
// one connection.
type Project struct {
	Name           string    `json:"name"`
	Open           bool      `json:"open"`
	ConnectionName string    `json:"connection_name,omitempty"`
	ProjectKey     string    `json:"project_key,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Bound reports whether the project has a complete binding.
func (p Project) Bound() bool {
	return strings.TrimSpace(p.ConnectionName) != "" && strings.TrimSpace(p.ProjectKey) != ""
}

// Module is a sub-unit of a project. A non-empty ProjectKey overrides the
// project-level key for that module.
type Module struct {
	Project    string    `json:"project"`
	Name       string    `json:"name"`
	ProjectKey string    `json:"project_key,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
