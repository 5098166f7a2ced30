package telemetry

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

type memoryPersister struct {
	mu      sync.Mutex
	saved   map[string]uint64
	saves   int
	loadErr error
	saveErr error
}

func (m *memoryPersister) LoadTelemetry(context.Context) (map[string]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]uint64, len(m.saved))
	for k, v := range m.saved {
		out[k] = v
	}
	return out, nil
}

func (m *memoryPersister) SaveTelemetry(_ context.Context, counters map[string]uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.saved = counters
	return nil
}

func TestCountersIncrementAndSnapshot(t *testing.T) {
	c := New(nil)
	c.NotificationReceived("QUALITY_GATE")
	c.NotificationReceived("quality_gate")
	c.NotificationReceived("")
	c.NotificationClicked("NEW_ISSUES")
	c.HotspotShowRequested()
	c.Inc("")

	want := map[string]uint64{
		"notifications.received.quality_gate": 2,
		"notifications.received.unknown":      1,
		"notifications.clicked.new_issues":    1,
		"hotspots.show_requested":             1,
	}
	if got := c.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if c.Get("hotspots.show_failed") != 0 {
		t.Fatal("unknown counter should read zero")
	}
}

func TestCountersConcurrentIncrements(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.HotspotShowFailed()
			}
		}()
	}
	wg.Wait()
	if got := c.Get("hotspots.show_failed"); got != 5000 {
		t.Fatalf("expected 5000, got %d", got)
	}
}

func TestCountersLoadAndFlush(t *testing.T) {
	p := &memoryPersister{saved: map[string]uint64{"hotspots.show_requested": 4}}
	c := New(p)
	ctx := context.Background()

	if err := c.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if p.saves != 0 {
		t.Fatal("flush without changes must not write")
	}

	c.HotspotShowRequested()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if p.saves != 1 || p.saved["hotspots.show_requested"] != 5 {
		t.Fatalf("unexpected persisted state %v after %d saves", p.saved, p.saves)
	}
}

func TestFlushKeepsDirtyOnError(t *testing.T) {
	p := &memoryPersister{saveErr: errors.New("disk full")}
	c := New(p)
	c.HotspotShowRequested()

	if err := c.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	p.saveErr = nil
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if p.saves != 1 {
		t.Fatalf("expected counters to be saved on retry, got %d saves", p.saves)
	}
}

func TestRunFlushesOnCancel(t *testing.T) {
	p := &memoryPersister{}
	c := New(p)
	c.HotspotShowRequested()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 0)
		close(done)
	}()
	cancel()
	<-done

	if p.saves != 1 {
		t.Fatalf("expected final flush, got %d saves", p.saves)
	}
}
