// Package observability exports daemon metrics in the Prometheus format.
package observability

import (
	"sync"
	"sync/atomic"

	"github.com/codescan-io/lintbridge/internal/eventbus"
)

// EventKey identifies a published event stream.
type EventKey struct {
	Topic  eventbus.Topic
	Source eventbus.Source
}

// EventCounter counts published events per topic and source.
type EventCounter struct {
	counts sync.Map // map[EventKey]*atomic.Uint64
}

// NewEventCounter creates a counter that can be registered as a bus observer.
func NewEventCounter() *EventCounter {
	return &EventCounter{}
}

// OnPublish implements eventbus.Observer.
func (c *EventCounter) OnPublish(env eventbus.Envelope) {
	if env.Topic == "" {
		return
	}
	key := EventKey{Topic: env.Topic, Source: env.Source}
	if v, ok := c.counts.Load(key); ok {
		v.(*atomic.Uint64).Add(1)
		return
	}
	v, _ := c.counts.LoadOrStore(key, &atomic.Uint64{})
	v.(*atomic.Uint64).Add(1)
}

// Snapshot exposes a stable copy of the current counts.
func (c *EventCounter) Snapshot() map[EventKey]uint64 {
	out := make(map[EventKey]uint64)
	c.counts.Range(func(key, value any) bool {
		out[key.(EventKey)] = value.(*atomic.Uint64).Load()
		return true
	})
	return out
}
