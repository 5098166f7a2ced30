package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/server"
)

// healthService reports component health over gRPC on a unix socket.
type healthService struct {
	socketPath string
	bus        *eventbus.Bus
	control    *server.ControlServer
	notifying  func() bool

	health    *health.Server
	mu        sync.Mutex
	grpc      *grpc.Server
	lifecycle eventbus.ServiceLifecycle
}

func newHealthService(socketPath string, bus *eventbus.Bus, control *server.ControlServer, notifying func() bool) *healthService {
	return &healthService{
		socketPath: socketPath,
		bus:        bus,
		control:    control,
		notifying:  notifying,
		health:     health.NewServer(),
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *healthService) refresh() {
	s.health.SetServingStatus(constants.HealthServiceControl, servingStatus(s.control.IsStarted()))
	s.health.SetServingStatus(constants.HealthServiceNotifications, servingStatus(s.notifying()))
}

func (s *healthService) Start(ctx context.Context) error {
	ln, err := listenUnix(s.socketPath)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.refresh()

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.health)
	s.mu.Lock()
	s.grpc = srv
	s.mu.Unlock()

	s.lifecycle.Start(ctx)
	controlSub := eventbus.SubscribeTo(s.bus, eventbus.Control.State, eventbus.WithSubscriptionName("health_control"))
	settingsSub := eventbus.SubscribeTo(s.bus, eventbus.Config.GlobalApplied, eventbus.WithSubscriptionName("health_settings"))
	s.lifecycle.AddSubscriptions(controlSub, settingsSub)
	s.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, controlSub, nil, func(eventbus.ControlStateEvent) { s.refresh() })
	})
	s.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, settingsSub, nil, func(eventbus.GlobalSettingsAppliedEvent) { s.refresh() })
	})

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("[Health] serve error: %v", err)
		}
	}()
	log.Printf("[Health] listening on %s", s.socketPath)
	return nil
}

func (s *healthService) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	s.lifecycle.Stop()

	s.mu.Lock()
	srv := s.grpc
	s.grpc = nil
	s.mu.Unlock()
	if srv != nil {
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			srv.Stop()
		}
	}
	if err := s.lifecycle.Wait(ctx); err != nil {
		return err
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("health: remove socket: %w", err)
	}
	return nil
}
