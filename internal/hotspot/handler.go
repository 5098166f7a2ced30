// Package hotspot serves "show security hotspot" requests: it resolves the
// connection and open project, fetches the hotspot and announces it.
package hotspot

import (
	"context"
	"fmt"
	"log"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/serverapi"
)

// Resolver finds the connection and project for a request.
type Resolver interface {
	ConnectionForServer(ctx context.Context, serverURL string) (store.ServerConnection, error)
	OpenProjectForKey(ctx context.Context, connection, projectKey string) (store.Project, error)
}

// Fetcher loads hotspot details from the server.
type Fetcher interface {
	ShowHotspot(ctx context.Context, conn store.ServerConnection, hotspotKey string) (serverapi.Hotspot, error)
}

// Recorder receives usage counters.
type Recorder interface {
	HotspotShowRequested()
	HotspotShowFailed()
}

// Handler processes show requests in the background.
type Handler struct {
	resolver  Resolver
	fetcher   Fetcher
	recorder  Recorder
	bus       *eventbus.Bus
	lifecycle eventbus.ServiceLifecycle
}

// NewHandler creates a Handler.
func NewHandler(resolver Resolver, fetcher Fetcher, recorder Recorder, bus *eventbus.Bus) *Handler {
	return &Handler{resolver: resolver, fetcher: fetcher, recorder: recorder, bus: bus}
}

// Start binds background work to ctx.
func (h *Handler) Start(ctx context.Context) {
	h.lifecycle.Start(ctx)
}

// Shutdown cancels pending lookups and waits for them.
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.lifecycle.Shutdown(ctx)
}

// Open schedules the lookup and returns immediately. Failures are logged and
// published on the hotspots topic.
func (h *Handler) Open(projectKey, hotspotKey, serverURL string) {
	if h.recorder != nil {
		h.recorder.HotspotShowRequested()
	}
	if h.lifecycle.Context() == nil {
		log.Printf("[Hotspot] handler not started, dropping request for %s", hotspotKey)
		return
	}
	h.lifecycle.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, constants.RemoteRequestTimeout*2)
		defer cancel()
		if err := h.show(ctx, projectKey, hotspotKey, serverURL); err != nil {
			h.fail(ctx, projectKey, hotspotKey, serverURL, err)
		}
	})
}

func (h *Handler) show(ctx context.Context, projectKey, hotspotKey, serverURL string) error {
	conn, err := h.resolver.ConnectionForServer(ctx, serverURL)
	if err != nil {
		return fmt.Errorf("no connection configured for %s: %w", serverURL, err)
	}
	project, err := h.resolver.OpenProjectForKey(ctx, conn.Name, projectKey)
	if err != nil {
		return fmt.Errorf("no open project bound to %s on %s: %w", projectKey, conn.Name, err)
	}
	details, err := h.fetcher.ShowHotspot(ctx, conn, hotspotKey)
	if err != nil {
		return err
	}

	log.Printf("[Hotspot] showing %s in project %s", hotspotKey, project.Name)
	eventbus.Publish(ctx, h.bus, eventbus.Hotspots.ShowRequested, eventbus.SourceHotspots, eventbus.HotspotShowRequestedEvent{
		Project:    project.Name,
		ProjectKey: projectKey,
		HotspotKey: hotspotKey,
		ServerURL:  serverURL,
		Message:    details.Message,
		Component:  details.Component.Path,
		Line:       details.Line,
		Status:     details.Status,
		RuleKey:    details.Rule.Key,
	})
	return nil
}

func (h *Handler) fail(ctx context.Context, projectKey, hotspotKey, serverURL string, err error) {
	log.Printf("[Hotspot] cannot show hotspot %s: %v", hotspotKey, err)
	if h.recorder != nil {
		h.recorder.HotspotShowFailed()
	}
	eventbus.Publish(context.WithoutCancel(ctx), h.bus, eventbus.Hotspots.ShowFailed, eventbus.SourceHotspots, eventbus.HotspotShowFailedEvent{
		ProjectKey: projectKey,
		HotspotKey: hotspotKey,
		ServerURL:  serverURL,
		Reason:     err.Error(),
	})
}
