package daemon

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	apihttp "github.com/codescan-io/lintbridge/internal/api/http"
	"github.com/codescan-io/lintbridge/internal/eventbus"
)

const (
	streamPingInterval = 54 * time.Second
	streamWriteWait    = 10 * time.Second
	streamQueue        = 64
)

// The admin socket is local-only; browser origins are refused.
var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") == "" },
}

func alertDTO(a eventbus.NotificationAlertEvent) *apihttp.Alert {
	actions := make([]string, len(a.Actions))
	for i, act := range a.Actions {
		actions[i] = string(act)
	}
	return &apihttp.Alert{
		ID:         a.ID,
		Project:    a.Project,
		Connection: a.ConnectionName,
		Category:   a.Category,
		Message:    a.Message,
		Link:       a.Link,
		Brand:      a.Brand,
		Actions:    actions,
		ReceivedAt: a.ReceivedAt,
	}
}

func forward[T any](ctx context.Context, sub *eventbus.TypedSubscription[T], out chan<- apihttp.StreamEntry, convert func(eventbus.TypedEnvelope[T]) apihttp.StreamEntry) {
	eventbus.ConsumeEnvelope(ctx, sub, nil, func(env eventbus.TypedEnvelope[T]) {
		entry := convert(env)
		entry.Timestamp = env.Timestamp
		select {
		case out <- entry:
		case <-ctx.Done():
		}
	})
}

// handleEvents streams alerts, hotspot requests and control state changes.
func (a *adminAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Admin] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(a.ctx())
	defer cancel()

	out := make(chan apihttp.StreamEntry, streamQueue)
	opts := func(name string) []eventbus.SubscriptionOption {
		return []eventbus.SubscriptionOption{
			eventbus.WithContext(ctx),
			eventbus.WithSubscriptionName("admin_stream_" + name),
			eventbus.WithSubscriptionBuffer(streamQueue),
		}
	}

	alerts := eventbus.SubscribeTo(a.bus, eventbus.Notifications.Alert, opts("alerts")...)
	states := eventbus.SubscribeTo(a.bus, eventbus.Notifications.AlertState, opts("alert_states")...)
	shown := eventbus.SubscribeTo(a.bus, eventbus.Hotspots.ShowRequested, opts("hotspots")...)
	failed := eventbus.SubscribeTo(a.bus, eventbus.Hotspots.ShowFailed, opts("hotspot_failures")...)
	control := eventbus.SubscribeTo(a.bus, eventbus.Control.State, opts("control")...)
	defer alerts.Close()
	defer states.Close()
	defer shown.Close()
	defer failed.Close()
	defer control.Close()

	go forward(ctx, alerts, out, func(env eventbus.TypedEnvelope[eventbus.NotificationAlertEvent]) apihttp.StreamEntry {
		return apihttp.StreamEntry{Type: apihttp.StreamAlert, Alert: alertDTO(env.Payload)}
	})
	go forward(ctx, states, out, func(env eventbus.TypedEnvelope[eventbus.AlertStateEvent]) apihttp.StreamEntry {
		return apihttp.StreamEntry{Type: apihttp.StreamAlertState, AlertID: env.Payload.ID, State: string(env.Payload.State), Reason: env.Payload.Reason}
	})
	go forward(ctx, shown, out, func(env eventbus.TypedEnvelope[eventbus.HotspotShowRequestedEvent]) apihttp.StreamEntry {
		p := env.Payload
		return apihttp.StreamEntry{Type: apihttp.StreamHotspot, Hotspot: &apihttp.HotspotRequest{
			Project: p.Project, ProjectKey: p.ProjectKey, HotspotKey: p.HotspotKey, ServerURL: p.ServerURL,
			Message: p.Message, Component: p.Component, Line: p.Line, Status: p.Status, RuleKey: p.RuleKey,
		}}
	})
	go forward(ctx, failed, out, func(env eventbus.TypedEnvelope[eventbus.HotspotShowFailedEvent]) apihttp.StreamEntry {
		p := env.Payload
		return apihttp.StreamEntry{Type: apihttp.StreamHotspotFailed, Hotspot: &apihttp.HotspotRequest{
			ProjectKey: p.ProjectKey, HotspotKey: p.HotspotKey, ServerURL: p.ServerURL, Error: p.Reason,
		}}
	})
	go forward(ctx, control, out, func(env eventbus.TypedEnvelope[eventbus.ControlStateEvent]) apihttp.StreamEntry {
		return apihttp.StreamEntry{Type: apihttp.StreamControl, State: env.Payload.State, Port: env.Payload.Port}
	})

	// Reads only detect the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[Admin] event stream closed: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopping"))
			return
		case entry := <-out:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
