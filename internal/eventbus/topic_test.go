package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubscribeToDeliversTypedPayload(t *testing.T) {
	bus := New()
	sub := SubscribeTo(bus, Hotspots.ShowRequested, WithSubscriptionName("test"))
	defer sub.Close()

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	Publish(context.Background(), bus, Hotspots.ShowRequested, SourceHotspots,
		HotspotShowRequestedEvent{ProjectKey: "p", HotspotKey: "h"},
		WithTimestamp(ts), WithCorrelationID("corr"))

	select {
	case env := <-sub.C():
		if env.Payload.HotspotKey != "h" || env.Payload.ProjectKey != "p" {
			t.Fatalf("unexpected payload %+v", env.Payload)
		}
		if !env.Timestamp.Equal(ts) {
			t.Fatalf("expected timestamp %v, got %v", ts, env.Timestamp)
		}
		if env.CorrelationID != "corr" {
			t.Fatalf("expected correlation id, got %q", env.CorrelationID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for typed event")
	}
}

func TestTypedSubscriptionSkipsMismatchedPayloads(t *testing.T) {
	bus := New()
	sub := SubscribeTo(bus, Config.ProjectChanged)
	defer sub.Close()

	ctx := context.Background()
	bus.publish(ctx, Envelope{Topic: TopicConfigProjectChanged, Payload: "not an event"})
	Publish(ctx, bus, Config.ProjectChanged, SourceConfigWatcher, ProjectConfigChangedEvent{Project: "demo"})

	select {
	case env := <-sub.C():
		if env.Payload.Project != "demo" {
			t.Fatalf("unexpected payload %+v", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for typed event")
	}
}

func TestConsumeStopsOnClose(t *testing.T) {
	bus := New()
	sub := SubscribeTo(bus, Projects.Lifecycle)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []ProjectLifecycleEvent
	)
	received := make(chan struct{}, 1)
	wg.Add(1)
	go Consume(context.Background(), sub, &wg, func(ev ProjectLifecycleEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		received <- struct{}{}
	})

	Publish(context.Background(), bus, Projects.Lifecycle, SourceAdminAPI, ProjectLifecycleEvent{Project: "demo", State: ProjectOpened})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	sub.Close()
	if err := WaitForWorkers(contextWithTimeout(t), &wg); err != nil {
		t.Fatalf("consume did not stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].State != ProjectOpened {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestTopicDescriptors(t *testing.T) {
	tests := []struct {
		name string
		got  Topic
		want Topic
	}{
		{"Config.GlobalApplied", Config.GlobalApplied.Topic(), TopicConfigGlobalApplied},
		{"Config.ProjectChanged", Config.ProjectChanged.Topic(), TopicConfigProjectChanged},
		{"Config.ConnectionsChanged", Config.ConnectionsChanged.Topic(), TopicConfigConnectionsChanged},
		{"Projects.ModulesChanged", Projects.ModulesChanged.Topic(), TopicProjectModulesChanged},
		{"Projects.Lifecycle", Projects.Lifecycle.Topic(), TopicProjectsLifecycle},
		{"Notifications.Alert", Notifications.Alert.Topic(), TopicNotificationsAlert},
		{"Notifications.AlertState", Notifications.AlertState.Topic(), TopicNotificationsAlertState},
		{"Hotspots.ShowRequested", Hotspots.ShowRequested.Topic(), TopicHotspotsShowRequested},
		{"Hotspots.ShowFailed", Hotspots.ShowFailed.Topic(), TopicHotspotsShowFailed},
		{"Control.State", Control.State.Topic(), TopicControlState},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %s want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestStrategyFor(t *testing.T) {
	if got := strategyFor(TopicNotificationsAlert, nil); got != StrategyDropNewest {
		t.Fatalf("alerts: got %s", got)
	}
	if got := strategyFor(TopicConfigProjectChanged, nil); got != StrategyDropOldest {
		t.Fatalf("config: got %s", got)
	}
	overrides := map[Topic]DeliveryStrategy{TopicConfigProjectChanged: StrategyDropNewest}
	if got := strategyFor(TopicConfigProjectChanged, overrides); got != StrategyDropNewest {
		t.Fatalf("override: got %s", got)
	}
}

func contextWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}
