package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codescan-io/lintbridge/internal/eventbus"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.TopicConfigProjectChanged)
	defer sub.Close()

	eventbus.Publish(context.Background(), bus, eventbus.Config.ProjectChanged, eventbus.SourceConfigWatcher,
		eventbus.ProjectConfigChangedEvent{Project: "demo"})

	select {
	case env := <-sub.C():
		if env.Source != eventbus.SourceConfigWatcher {
			t.Fatalf("unexpected source %s", env.Source)
		}
		if env.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be populated")
		}
		payload, ok := env.Payload.(eventbus.ProjectConfigChangedEvent)
		if !ok || payload.Project != "demo" {
			t.Fatalf("unexpected payload %#v", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestDropOldestKeepsLatest(t *testing.T) {
	bus := eventbus.New(eventbus.WithTopicBuffer(eventbus.TopicConfigProjectChanged, 1))
	sub := bus.Subscribe(eventbus.TopicConfigProjectChanged)
	defer sub.Close()

	ctx := context.Background()
	eventbus.Publish(ctx, bus, eventbus.Config.ProjectChanged, eventbus.SourceConfigWatcher, eventbus.ProjectConfigChangedEvent{Project: "first"})
	eventbus.Publish(ctx, bus, eventbus.Config.ProjectChanged, eventbus.SourceConfigWatcher, eventbus.ProjectConfigChangedEvent{Project: "second"})

	env := <-sub.C()
	if got := env.Payload.(eventbus.ProjectConfigChangedEvent).Project; got != "second" {
		t.Fatalf("expected latest event to survive, got %q", got)
	}
	if sub.Dropped() != 1 {
		t.Fatalf("expected one drop, got %d", sub.Dropped())
	}
}

func TestDropNewestKeepsFirst(t *testing.T) {
	bus := eventbus.New(eventbus.WithTopicBuffer(eventbus.TopicNotificationsAlert, 1))
	sub := bus.Subscribe(eventbus.TopicNotificationsAlert)
	defer sub.Close()

	ctx := context.Background()
	eventbus.Publish(ctx, bus, eventbus.Notifications.Alert, eventbus.SourceNotifications, eventbus.NotificationAlertEvent{ID: "a"})
	eventbus.Publish(ctx, bus, eventbus.Notifications.Alert, eventbus.SourceNotifications, eventbus.NotificationAlertEvent{ID: "b"})

	env := <-sub.C()
	if got := env.Payload.(eventbus.NotificationAlertEvent).ID; got != "a" {
		t.Fatalf("expected first alert to survive, got %q", got)
	}
}

func TestStrategyOverride(t *testing.T) {
	bus := eventbus.New(
		eventbus.WithTopicBuffer(eventbus.TopicNotificationsAlert, 1),
		eventbus.WithTopicStrategy(eventbus.TopicNotificationsAlert, eventbus.StrategyDropOldest),
	)
	sub := bus.Subscribe(eventbus.TopicNotificationsAlert)
	defer sub.Close()

	ctx := context.Background()
	eventbus.Publish(ctx, bus, eventbus.Notifications.Alert, eventbus.SourceNotifications, eventbus.NotificationAlertEvent{ID: "a"})
	eventbus.Publish(ctx, bus, eventbus.Notifications.Alert, eventbus.SourceNotifications, eventbus.NotificationAlertEvent{ID: "b"})

	env := <-sub.C()
	if got := env.Payload.(eventbus.NotificationAlertEvent).ID; got != "b" {
		t.Fatalf("expected override to keep latest, got %q", got)
	}
}

func TestShutdownClosesSubscriptions(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.TopicControlState)
	bus.Shutdown()

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel after shutdown")
	}
	sub.Close()
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(eventbus.TopicControlState, eventbus.WithContext(ctx))
	cancel()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed on context cancel")
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *eventbus.Bus
	eventbus.Publish(context.Background(), bus, eventbus.Control.State, eventbus.SourceControlServer, eventbus.ControlStateEvent{})
	bus.Shutdown()

	sub := eventbus.SubscribeTo(bus, eventbus.Control.State)
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel for nil bus")
	}
	sub.Close()
	sub.Close()
}

type topicRecorder struct {
	mu     sync.Mutex
	topics []eventbus.Topic
}

func (r *topicRecorder) OnPublish(env eventbus.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, env.Topic)
}

func TestObserverAndMetrics(t *testing.T) {
	rec := &topicRecorder{}
	bus := eventbus.New(
		eventbus.WithObserver(rec),
		eventbus.WithTopicBuffer(eventbus.TopicConfigProjectChanged, 1),
		eventbus.WithTopicStrategy(eventbus.TopicConfigProjectChanged, eventbus.StrategyDropNewest),
	)
	sub := bus.Subscribe(eventbus.TopicConfigProjectChanged)
	defer sub.Close()

	ctx := context.Background()
	for _, name := range []string{"one", "two", "three"} {
		eventbus.Publish(ctx, bus, eventbus.Config.ProjectChanged, eventbus.SourceConfigWatcher,
			eventbus.ProjectConfigChangedEvent{Project: name})
	}
	eventbus.Publish(ctx, bus, eventbus.Config.ConnectionsChanged, eventbus.SourceConfigWatcher, eventbus.ConnectionsChangedEvent{})

	metrics := bus.Metrics()
	if metrics.PublishTotal != 4 {
		t.Fatalf("expected 4 publishes, got %d", metrics.PublishTotal)
	}
	if metrics.DroppedTotal != 2 || sub.Dropped() != 2 {
		t.Fatalf("expected 2 drops, got bus=%d sub=%d", metrics.DroppedTotal, sub.Dropped())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.topics) != 4 || rec.topics[3] != eventbus.TopicConfigConnectionsChanged {
		t.Fatalf("unexpected observed topics %v", rec.topics)
	}
}
