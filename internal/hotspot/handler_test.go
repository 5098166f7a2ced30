package hotspot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/serverapi"
)

type stubResolver struct {
	conn    store.ServerConnection
	connErr error
	project store.Project
	projErr error
}

func (s stubResolver) ConnectionForServer(context.Context, string) (store.ServerConnection, error) {
	return s.conn, s.connErr
}

func (s stubResolver) OpenProjectForKey(context.Context, string, string) (store.Project, error) {
	return s.project, s.projErr
}

type stubFetcher struct {
	hotspot serverapi.Hotspot
	err     error
}

func (s stubFetcher) ShowHotspot(context.Context, store.ServerConnection, string) (serverapi.Hotspot, error) {
	return s.hotspot, s.err
}

type countingRecorder struct {
	mu                sync.Mutex
	requested, failed int
}

func (c *countingRecorder) HotspotShowRequested() { c.mu.Lock(); c.requested++; c.mu.Unlock() }
func (c *countingRecorder) HotspotShowFailed()    { c.mu.Lock(); c.failed++; c.mu.Unlock() }

func startHandler(t *testing.T, r Resolver, f Fetcher, rec Recorder, bus *eventbus.Bus) *Handler {
	t.Helper()
	h := NewHandler(r, f, rec, bus)
	h.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})
	return h
}

func TestOpenPublishesResolvedHotspot(t *testing.T) {
	bus := eventbus.New()
	sub := eventbus.SubscribeTo(bus, eventbus.Hotspots.ShowRequested)
	defer sub.Close()

	var hs serverapi.Hotspot
	hs.Message = "Make sure this is safe"
	hs.Line = 42
	hs.Component.Path = "src/App.java"
	hs.Rule.Key = "java:S2068"

	rec := &countingRecorder{}
	h := startHandler(t,
		stubResolver{conn: store.ServerConnection{Name: "corp"}, project: store.Project{Name: "alpha"}},
		stubFetcher{hotspot: hs}, rec, bus)

	h.Open("org:alpha", "AX1", "https://my.sonar.com")

	select {
	case env := <-sub.C():
		ev := env.Payload
		if ev.Project != "alpha" || ev.HotspotKey != "AX1" || ev.Line != 42 || ev.Component != "src/App.java" || ev.RuleKey != "java:S2068" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hotspot event")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.requested != 1 || rec.failed != 0 {
		t.Fatalf("unexpected counters %+v", rec)
	}
}

func TestOpenReportsFailures(t *testing.T) {
	tests := []struct {
		name     string
		resolver stubResolver
		fetcher  stubFetcher
		reason   string
	}{
		{
			name:     "unknown server",
			resolver: stubResolver{connErr: store.NotFoundError{Entity: "connection"}},
			reason:   "no connection configured",
		},
		{
			name:     "project not open",
			resolver: stubResolver{conn: store.ServerConnection{Name: "corp"}, projErr: store.NotFoundError{Entity: "project"}},
			reason:   "no open project bound",
		},
		{
			name:     "server unavailable",
			resolver: stubResolver{conn: store.ServerConnection{Name: "corp"}, project: store.Project{Name: "alpha"}},
			fetcher:  stubFetcher{err: errors.New("boom")},
			reason:   "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := eventbus.New()
			sub := eventbus.SubscribeTo(bus, eventbus.Hotspots.ShowFailed)
			defer sub.Close()

			rec := &countingRecorder{}
			h := startHandler(t, tt.resolver, tt.fetcher, rec, bus)
			h.Open("org:alpha", "AX1", "https://my.sonar.com")

			select {
			case env := <-sub.C():
				if !strings.Contains(env.Payload.Reason, tt.reason) {
					t.Fatalf("reason %q does not mention %q", env.Payload.Reason, tt.reason)
				}
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for failure event")
			}
			rec.mu.Lock()
			defer rec.mu.Unlock()
			if rec.failed != 1 {
				t.Fatalf("expected one failure, got %d", rec.failed)
			}
		})
	}
}
