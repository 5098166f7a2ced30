// Package telemetry keeps local usage counters and persists them in the
// configuration store.
package telemetry

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codescan-io/lintbridge/internal/constants"
)

// Persister loads and saves counter values.
type Persister interface {
	LoadTelemetry(ctx context.Context) (map[string]uint64, error)
	SaveTelemetry(ctx context.Context, counters map[string]uint64) error
}

// Counters is a set of named monotonic counters safe for concurrent use.
type Counters struct {
	counts    sync.Map // map[string]*atomic.Uint64
	dirty     atomic.Bool
	persister Persister
}

// New creates counters backed by persister. A nil persister keeps counters
// in memory only.
func New(persister Persister) *Counters {
	return &Counters{persister: persister}
}

// Load seeds the counters with persisted values.
func (c *Counters) Load(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	values, err := c.persister.LoadTelemetry(ctx)
	if err != nil {
		return err
	}
	for name, value := range values {
		c.counterFor(name).Store(value)
	}
	return nil
}

// Inc increments the named counter by one.
func (c *Counters) Inc(name string) {
	if name == "" {
		return
	}
	c.counterFor(name).Add(1)
	c.dirty.Store(true)
}

// NotificationReceived records a server notification of category.
func (c *Counters) NotificationReceived(category string) {
	c.Inc(categoryCounter(constants.TelemetryNotificationsReceived, category))
}

// NotificationClicked records that the user opened a notification of category.
func (c *Counters) NotificationClicked(category string) {
	c.Inc(categoryCounter(constants.TelemetryNotificationsClicked, category))
}

// HotspotShowRequested records a show hotspot request.
func (c *Counters) HotspotShowRequested() {
	c.Inc(constants.TelemetryHotspotShowRequested)
}

// HotspotShowFailed records a show hotspot request that could not be served.
func (c *Counters) HotspotShowFailed() {
	c.Inc(constants.TelemetryHotspotShowFailed)
}

func categoryCounter(prefix, category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = "unknown"
	}
	return prefix + "." + category
}

// Get returns the current value of name.
func (c *Counters) Get(name string) uint64 {
	if v, ok := c.counts.Load(name); ok {
		return v.(*atomic.Uint64).Load()
	}
	return 0
}

// Snapshot exposes a stable copy of the current counts.
func (c *Counters) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	c.counts.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return out
}

// Names returns the counter names in sorted order.
func (c *Counters) Names() []string {
	var names []string
	c.counts.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Flush persists the counters when they changed since the last flush.
func (c *Counters) Flush(ctx context.Context) error {
	if c.persister == nil || !c.dirty.Swap(false) {
		return nil
	}
	if err := c.persister.SaveTelemetry(ctx, c.Snapshot()); err != nil {
		c.dirty.Store(true)
		return err
	}
	return nil
}

// Run flushes periodically until ctx is done, then flushes once more.
func (c *Counters) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.TelemetryFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), constants.StoreQueryTimeout)
			if err := c.Flush(flushCtx); err != nil {
				log.Printf("[Telemetry] final flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				log.Printf("[Telemetry] flush failed: %v", err)
			}
		}
	}
}

func (c *Counters) counterFor(name string) *atomic.Uint64 {
	if v, ok := c.counts.Load(name); ok {
		return v.(*atomic.Uint64)
	}
	actual, _ := c.counts.LoadOrStore(name, &atomic.Uint64{})
	return actual.(*atomic.Uint64)
}
