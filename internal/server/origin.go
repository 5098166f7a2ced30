package server

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
)

var trustedCloudHosts = []string{
	constants.CodeScanUSDomain,
	constants.CodeScanEUDomain,
}

// IsTrustedOrigin reports whether origin may receive the detailed status.
// Only https origins are trusted: either a CodeScan cloud host on the default
// port, or any port on the host of one of connections.
func IsTrustedOrigin(origin string, connections []store.ServerConnection) bool {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || !strings.EqualFold(u.Scheme, "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	port := u.Port()
	for _, cloud := range trustedCloudHosts {
		if host == cloud && (port == "" || port == "443") {
			return true
		}
	}

	for _, conn := range connections {
		if connHost := conn.Host(); connHost != "" && connHost == host {
			return true
		}
	}
	return false
}

// ConnectionLister reads the current server connections.
type ConnectionLister interface {
	ListConnections(ctx context.Context) ([]store.ServerConnection, error)
}

// OriginValidator evaluates origins against the connection list as it is at
// the time of each call.
type OriginValidator struct {
	connections ConnectionLister
}

// NewOriginValidator constructs a validator reading connections from lister.
func NewOriginValidator(lister ConnectionLister) *OriginValidator {
	return &OriginValidator{connections: lister}
}

// IsTrusted reports whether origin is trusted. When connections cannot be
// read only the cloud hosts are considered.
func (v *OriginValidator) IsTrusted(ctx context.Context, origin string) bool {
	if strings.TrimSpace(origin) == "" {
		return false
	}
	var conns []store.ServerConnection
	if v.connections != nil {
		list, err := v.connections.ListConnections(ctx)
		if err != nil {
			log.Printf("[ControlServer] failed to read connections for origin check: %v", err)
		} else {
			conns = list
		}
	}
	return IsTrustedOrigin(origin, conns)
}
