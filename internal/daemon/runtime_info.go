package daemon

import (
	"sync"
	"time"

	"github.com/codescan-io/lintbridge/internal/config"
)

// RuntimeInfo holds daemon metadata served by the admin API.
type RuntimeInfo struct {
	mu        sync.RWMutex
	startTime time.Time
	settings  config.Settings
}

// SetStartTime records the daemon start time.
func (r *RuntimeInfo) SetStartTime(t time.Time) {
	r.mu.Lock()
	r.startTime = t
	r.mu.Unlock()
}

// StartTime returns the daemon start time.
func (r *RuntimeInfo) StartTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startTime
}

// SetSettings stores the settings currently applied.
func (r *RuntimeInfo) SetSettings(s config.Settings) {
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
}

// Settings returns the settings currently applied.
func (r *RuntimeInfo) Settings() config.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}
