package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codescan-io/lintbridge/internal/eventbus"
)

type fakePoller struct{}

func (fakePoller) Polls() uint64 { return 7 }
func (fakePoller) Count() int    { return 2 }

type fakeControl struct{ started bool }

func (c fakeControl) IsStarted() bool { return c.started }
func (c fakeControl) Port() int {
	if c.started {
		return 64120
	}
	return 0
}

func TestEventCounterSnapshot(t *testing.T) {
	counter := NewEventCounter()
	bus := eventbus.New(eventbus.WithObserver(counter))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eventbus.Publish(ctx, bus, eventbus.Config.ConnectionsChanged, eventbus.SourceConfigWatcher, eventbus.ConnectionsChangedEvent{})
		}()
	}
	wg.Wait()
	eventbus.Publish(ctx, bus, eventbus.Config.GlobalApplied, eventbus.SourceSettingsWatcher, eventbus.GlobalSettingsAppliedEvent{})

	snap := counter.Snapshot()
	if got := snap[EventKey{Topic: eventbus.TopicConfigConnectionsChanged, Source: eventbus.SourceConfigWatcher}]; got != 8 {
		t.Fatalf("expected 8 connection events, got %d", got)
	}
	if got := snap[EventKey{Topic: eventbus.TopicConfigGlobalApplied, Source: eventbus.SourceSettingsWatcher}]; got != 1 {
		t.Fatalf("expected 1 settings event, got %d", got)
	}
}

func TestExporterMetrics(t *testing.T) {
	counter := NewEventCounter()
	bus := eventbus.New(eventbus.WithObserver(counter))
	eventbus.Publish(context.Background(), bus, eventbus.Control.State, eventbus.SourceControlServer,
		eventbus.ControlStateEvent{State: "started", Port: 64120})

	exp := NewExporter(Sources{
		Bus:           bus,
		Events:        counter,
		Usage:         func() map[string]uint64 { return map[string]uint64{"notifications.received.quality_gate": 3} },
		Poller:        fakePoller{},
		Control:       fakeControl{started: true},
		Subscriptions: func() int { return 1 },
	})

	if n := promtestutil.CollectAndCount(exp); n != 9 {
		t.Fatalf("expected 9 metrics, got %d", n)
	}

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`lintbridge_eventbus_events_total{source="control_server",topic="control.state"} 1`,
		`lintbridge_eventbus_publish_total 1`,
		`lintbridge_usage_total{counter="notifications.received.quality_gate"} 3`,
		`lintbridge_notifications_polls_total 7`,
		`lintbridge_notifications_registrations 2`,
		`lintbridge_control_server_up 1`,
		`lintbridge_control_server_port 64120`,
		`go_goroutines`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestExporterSkipsMissingSources(t *testing.T) {
	exp := NewExporter(Sources{Control: fakeControl{}})
	if n := promtestutil.CollectAndCount(exp); n != 2 {
		t.Fatalf("expected only control metrics, got %d", n)
	}
}
