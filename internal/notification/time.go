package notification

import (
	"context"
	"time"
)

// TimeStore persists the last-poll timestamp per project.
type TimeStore interface {
	GetLastEventPolling(ctx context.Context, project string) (time.Time, error)
	SetLastEventPolling(ctx context.Context, project string, ts time.Time) (bool, error)
	ResetLastEventPolling(ctx context.Context, project string, ts time.Time) error
}

// ProjectTime tracks when a project last received server events. Reads
// initialise the value to the current time; writes only move it forward.
type ProjectTime struct {
	store   TimeStore
	project string
}

// NewProjectTime binds a timestamp tracker to project.
func NewProjectTime(store TimeStore, project string) *ProjectTime {
	return &ProjectTime{store: store, project: project}
}

// Project returns the tracked project name.
func (p *ProjectTime) Project() string { return p.project }

// Get returns the last-poll time, storing now when none was recorded.
func (p *ProjectTime) Get(ctx context.Context) (time.Time, error) {
	return p.store.GetLastEventPolling(ctx, p.project)
}

// Advance moves the last-poll time to ts unless a later one is stored.
func (p *ProjectTime) Advance(ctx context.Context, ts time.Time) (bool, error) {
	return p.store.SetLastEventPolling(ctx, p.project, ts)
}

// Reset overwrites the last-poll time.
func (p *ProjectTime) Reset(ctx context.Context, ts time.Time) error {
	return p.store.ResetLastEventPolling(ctx, p.project, ts)
}
