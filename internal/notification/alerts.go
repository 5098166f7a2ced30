package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/sanitize"
	"github.com/codescan-io/lintbridge/internal/serverapi"
	"github.com/codescan-io/lintbridge/internal/validate"
)

const alertBookSize = 256

// ErrAlertNotFound is returned for unknown or evicted alert ids.
var ErrAlertNotFound = errors.New("notification: alert not found")

// Recorder receives usage counters.
type Recorder interface {
	NotificationReceived(category string)
	NotificationClicked(category string)
}

// BrowserOpener opens links in the user's browser.
type BrowserOpener interface {
	Open(url string) error
}

// ConfigureTarget tells the caller which connection editor to show.
type ConfigureTarget struct {
	Connection store.ServerConnection
	Focus      string
}

// Alerts turns server events into alerts and serves the actions they offer.
type Alerts struct {
	bus      *eventbus.Bus
	recorder Recorder
	conns    ConnectionSource
	browser  BrowserOpener
	book     *lru.Cache[string, eventbus.NotificationAlertEvent]
	now      func() time.Time
}

// NewAlerts creates an alert book.
func NewAlerts(bus *eventbus.Bus, recorder Recorder, conns ConnectionSource, browser BrowserOpener) *Alerts {
	book, err := lru.New[string, eventbus.NotificationAlertEvent](alertBookSize)
	if err != nil {
		panic(fmt.Sprintf("notification: alert book: %v", err))
	}
	return &Alerts{bus: bus, recorder: recorder, conns: conns, browser: browser, book: book, now: time.Now}
}

// ListenerFor returns a listener that raises alerts for project.
func (a *Alerts) ListenerFor(project string) EventListener {
	return EventListenerFunc(func(ctx context.Context, conn store.ServerConnection, ev serverapi.ServerEvent) {
		a.raise(ctx, project, conn, ev)
	})
}

func brandFor(conn store.ServerConnection) string {
	if conn.IsCloud {
		return constants.CloudBrandLabel
	}
	return constants.SelfHostedBrandLabel
}

func (a *Alerts) raise(ctx context.Context, project string, conn store.ServerConnection, ev serverapi.ServerEvent) {
	if a.recorder != nil {
		a.recorder.NotificationReceived(ev.Category)
	}
	alert := eventbus.NotificationAlertEvent{
		ID:             uuid.NewString(),
		Project:        project,
		ConnectionName: conn.Name,
		Category:       ev.Category,
		Message:        sanitize.Message(ev.Message),
		Link:           ev.Link,
		Brand:          brandFor(conn),
		Actions:        []eventbus.AlertAction{eventbus.AlertActionOpen, eventbus.AlertActionConfigure},
		ReceivedAt:     a.now(),
	}
	a.book.Add(alert.ID, alert)
	eventbus.Publish(ctx, a.bus, eventbus.Notifications.Alert, eventbus.SourceNotifications, alert)
}

// Get returns a recent alert.
func (a *Alerts) Get(id string) (eventbus.NotificationAlertEvent, bool) {
	return a.book.Peek(id)
}

// Recent lists the alerts still held, oldest first.
func (a *Alerts) Recent() []eventbus.NotificationAlertEvent {
	return a.book.Values()
}

// Open follows the alert's link and retires the alert.
func (a *Alerts) Open(ctx context.Context, id string) error {
	alert, ok := a.book.Peek(id)
	if !ok {
		return ErrAlertNotFound
	}
	if a.recorder != nil {
		a.recorder.NotificationClicked(alert.Category)
	}
	if a.browser != nil && alert.Link != "" {
		if err := validate.HTTPURL(alert.Link); err != nil {
			return fmt.Errorf("notification: open %s: %w", id, err)
		}
		if err := a.browser.Open(alert.Link); err != nil {
			return fmt.Errorf("notification: open %s: %w", alert.Link, err)
		}
	}
	a.book.Remove(id)
	a.publishState(ctx, id, eventbus.AlertOpened, "")
	return nil
}

// Configure resolves the connection behind the alert so its notification
// settings can be shown. An alert whose connection is gone expires.
func (a *Alerts) Configure(ctx context.Context, id string) (ConfigureTarget, error) {
	alert, ok := a.book.Peek(id)
	if !ok {
		return ConfigureTarget{}, ErrAlertNotFound
	}
	a.book.Remove(id)

	conn, err := a.conns.GetConnection(ctx, alert.ConnectionName)
	if err != nil {
		if store.IsNotFound(err) {
			log.Printf("[Notifications] Unable to find connection with name: %s", alert.ConnectionName)
			a.publishState(ctx, id, eventbus.AlertExpired, "connection removed")
		}
		return ConfigureTarget{}, fmt.Errorf("notification: configure %s: %w", id, err)
	}
	a.publishState(ctx, id, eventbus.AlertConfigured, "")
	return ConfigureTarget{Connection: conn, Focus: constants.FocusNotifications}, nil
}

func (a *Alerts) publishState(ctx context.Context, id string, state eventbus.AlertState, reason string) {
	eventbus.Publish(ctx, a.bus, eventbus.Notifications.AlertState, eventbus.SourceNotifications, eventbus.AlertStateEvent{
		ID:     id,
		State:  state,
		Reason: reason,
	})
}
