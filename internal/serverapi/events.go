package serverapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
)

const (
	searchEventsPath = "/api/developers/search_events"
	// eventTimeLayout is the timestamp format of the events API.
	eventTimeLayout = "2006-01-02T15:04:05-0700"
)

var (
	capabilitiesTimeout = constants.RemoteCapabilitiesTimeout
	now                 = time.Now
)

// ServerEvent is a developer notification reported by the server.
type ServerEvent struct {
	Category   string
	Message    string
	Link       string
	ProjectKey string
	Time       time.Time
}

type searchEventsResponse struct {
	Events []struct {
		Category string `json:"category"`
		Message  string `json:"message"`
		Link     string `json:"link"`
		Project  string `json:"project"`
		Date     string `json:"date"`
	} `json:"events"`
}

// IsSupported reports whether conn serves developer notifications. Cloud
// connections always do; self-hosted servers get one unretried request and
// a 404 means the feature is missing.
func (c *Client) IsSupported(ctx context.Context, conn store.ServerConnection) (bool, error) {
	if conn.IsCloud {
		return true, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, capabilitiesTimeout)
	defer cancel()

	query := url.Values{"projects": {""}, "from": {now().UTC().Format(eventTimeLayout)}}
	err := c.getJSONTries(probeCtx, conn, searchEventsPath, query, nil, 1)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("serverapi: probe notifications on %s: %w", conn.Name, err)
	}
}

// SearchEvents returns events newer than the per-project timestamps in since,
// oldest first.
func (c *Client) SearchEvents(ctx context.Context, conn store.ServerConnection, since map[string]time.Time) ([]ServerEvent, error) {
	if len(since) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(since))
	for key := range since {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	froms := make([]string, len(keys))
	for i, key := range keys {
		froms[i] = since[key].UTC().Format(eventTimeLayout)
	}

	var resp searchEventsResponse
	query := url.Values{
		"projects": {strings.Join(keys, ",")},
		"from":     {strings.Join(froms, ",")},
	}
	if err := c.getJSON(ctx, conn, searchEventsPath, query, &resp); err != nil {
		return nil, fmt.Errorf("serverapi: search events on %s: %w", conn.Name, err)
	}

	events := make([]ServerEvent, 0, len(resp.Events))
	for _, ev := range resp.Events {
		ts, err := time.Parse(eventTimeLayout, ev.Date)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, ev.Date)
		}
		if err != nil {
			continue
		}
		events = append(events, ServerEvent{
			Category:   ev.Category,
			Message:    ev.Message,
			Link:       ev.Link,
			ProjectKey: ev.Project,
			Time:       ts.UTC(),
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})
	return events, nil
}
