// Package validate checks names and URLs entered by users or received from
// servers.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// NameRe matches connection, project and module names.
// Must start with alphanumeric, followed by alphanumeric, dots, hyphens, or underscores.
var NameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// MaxNameLen is the maximum length for names.
const MaxNameLen = 128

// Name validates a connection, project or module name.
func Name(s string) error {
	if s == "" {
		return fmt.Errorf("name is empty")
	}
	if len(s) > MaxNameLen {
		return fmt.Errorf("name %q exceeds %d characters", s, MaxNameLen)
	}
	if !NameRe.MatchString(s) {
		return fmt.Errorf("name %q may only contain letters, digits, dots, hyphens and underscores", s)
	}
	return nil
}

// HTTPURL ensures the URL uses http or https scheme and has a non-empty host.
// Links outside those schemes are never handed to the browser.
func HTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "":
		return fmt.Errorf("URL missing scheme: %s", rawURL)
	default:
		return fmt.Errorf("URL scheme %q not allowed (only http/https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL missing host: %s", rawURL)
	}
	return nil
}

// ServerURL validates a server base URL and returns it without trailing
// slashes, query or fragment.
func ServerURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := HTTPURL(rawURL); err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.User != nil {
		return "", fmt.Errorf("URL must not embed credentials: %s", u.Redacted())
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}
