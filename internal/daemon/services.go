package daemon

import (
	"context"
	"errors"
	"log"

	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/portbind"
	daemonruntime "github.com/codescan-io/lintbridge/internal/runtime"
	"github.com/codescan-io/lintbridge/internal/server"
	"github.com/codescan-io/lintbridge/internal/telemetry"
)

// funcService adapts start/stop functions to runtime.Service.
type funcService struct {
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (s funcService) Start(ctx context.Context) error {
	if s.start == nil {
		return nil
	}
	return s.start(ctx)
}

func (s funcService) Shutdown(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	return s.stop(ctx)
}

var _ daemonruntime.Service = funcService{}

// controlService runs the loopback control server when enabled. Failing to
// bind leaves the daemon running without it.
type controlService struct {
	server  *server.ControlServer
	enabled func() bool
}

func (s *controlService) Start(context.Context) error {
	if !s.enabled() {
		log.Printf("[Daemon] control server disabled by settings")
		return nil
	}
	s.startOnce()
	return nil
}

func (s *controlService) startOnce() {
	if err := s.server.StartOnce(); err != nil && !errors.Is(err, portbind.ErrRangeExhausted) {
		log.Printf("[Daemon] control server: %v", err)
	}
}

func (s *controlService) Shutdown(ctx context.Context) error {
	return s.server.Stop(ctx)
}

// apply follows the enabled switch after a settings reload.
func (s *controlService) apply(ctx context.Context) {
	switch {
	case s.enabled() && !s.server.IsStarted():
		s.startOnce()
	case !s.enabled() && s.server.IsStarted():
		if err := s.server.Stop(ctx); err != nil {
			log.Printf("[Daemon] stop control server: %v", err)
		}
	}
}

// telemetryService periodically persists usage counters.
type telemetryService struct {
	counters  *telemetry.Counters
	lifecycle eventbus.ServiceLifecycle
}

func newTelemetryService(counters *telemetry.Counters) *telemetryService {
	return &telemetryService{counters: counters}
}

func (s *telemetryService) Start(ctx context.Context) error {
	s.lifecycle.Start(ctx)
	s.lifecycle.Go(func(ctx context.Context) {
		s.counters.Run(ctx, constants.TelemetryFlushInterval)
	})
	return nil
}

func (s *telemetryService) Shutdown(ctx context.Context) error {
	return s.lifecycle.Shutdown(ctx)
}
