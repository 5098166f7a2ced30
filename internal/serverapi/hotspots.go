package serverapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/codescan-io/lintbridge/internal/config/store"
)

const showHotspotPath = "/api/hotspots/show"

// Hotspot is the server-side description of a security hotspot.
type Hotspot struct {
	Key       string `json:"key"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	Line      int    `json:"line"`
	Component struct {
		Key  string `json:"key"`
		Path string `json:"path"`
	} `json:"component"`
	Rule struct {
		Key                      string `json:"key"`
		Name                     string `json:"name"`
		SecurityCategory         string `json:"securityCategory"`
		VulnerabilityProbability string `json:"vulnerabilityProbability"`
	} `json:"rule"`
}

// ShowHotspot fetches a hotspot by key.
func (c *Client) ShowHotspot(ctx context.Context, conn store.ServerConnection, hotspotKey string) (Hotspot, error) {
	var hotspot Hotspot
	query := url.Values{"hotspot": {hotspotKey}}
	if err := c.getJSON(ctx, conn, showHotspotPath, query, &hotspot); err != nil {
		return Hotspot{}, fmt.Errorf("serverapi: show hotspot %s on %s: %w", hotspotKey, conn.Name, err)
	}
	return hotspot, nil
}
