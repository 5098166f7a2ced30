package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/portbind"
)

// State is the lifecycle state of the control server.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	default:
		return "stopped"
	}
}

// listenerHolder is implemented by binders that own a real socket.
type listenerHolder interface {
	Listener() net.Listener
	Release()
}

// ControlServer serves the loopback control endpoints on the first free
// port of its range.
type ControlServer struct {
	binder  portbind.Binder
	ports   portbind.Range
	router  *Router
	origins *OriginValidator
	bus     *eventbus.Bus

	mu         sync.Mutex
	state      atomic.Int32
	port       atomic.Int32
	exhausted  bool
	httpServer *http.Server
	serveDone  chan struct{}
}

// Option customises a ControlServer.
type Option func(*ControlServer)

// WithBinder replaces the loopback TCP binder.
func WithBinder(b portbind.Binder) Option {
	return func(s *ControlServer) {
		if b != nil {
			s.binder = b
		}
	}
}

// WithPortRange overrides the port range.
func WithPortRange(r portbind.Range) Option {
	return func(s *ControlServer) {
		s.ports = r
	}
}

// WithEventBus publishes state transitions on bus.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(s *ControlServer) {
		s.bus = bus
	}
}

// NewControlServer constructs a stopped server.
func NewControlServer(router *Router, origins *OriginValidator, opts ...Option) *ControlServer {
	s := &ControlServer{
		binder:  portbind.NewLoopbackBinder(),
		ports:   portbind.Range{Start: constants.ControlPortStart, End: constants.ControlPortEnd},
		router:  router,
		origins: origins,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartOnce binds the first free port of the range and starts serving.
// It is a no-op when already started. Once the range was found exhausted
// every later call returns portbind.ErrRangeExhausted without retrying.
func (s *ControlServer) StartOnce() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) == StateStarted {
		return nil
	}
	if s.exhausted {
		return portbind.ErrRangeExhausted
	}
	if err := s.ports.Validate(); err != nil {
		return err
	}

	s.setState(StateStarting)
	port, ok := portbind.BindToRange(s.binder, s.ports)
	if !ok {
		s.exhausted = true
		s.setState(StateStopped)
		log.Printf("[ControlServer] unable to bind any port in %s, control server disabled", s.ports)
		return fmt.Errorf("control server: %w", portbind.ErrRangeExhausted)
	}

	if holder, ok := s.binder.(listenerHolder); ok {
		if ln := holder.Listener(); ln != nil {
			s.serve(ln)
		}
	}

	s.port.Store(int32(port))
	s.setState(StateStarted)
	log.Printf("[ControlServer] listening on 127.0.0.1:%d", port)
	return nil
}

func (s *ControlServer) serve(ln net.Listener) {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: constants.ControlServerReadHeaderTimeout,
	}
	done := make(chan struct{})
	s.httpServer = srv
	s.serveDone = done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ControlServer] serve error: %v", err)
		}
	}()
}

// Stop closes the listener. In-flight requests get a short grace period and
// are dropped afterwards.
func (s *ControlServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) != StateStarted {
		return nil
	}

	var err error
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ControlServerShutdownTimeout)
		if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			s.httpServer.Close()
			if !errors.Is(shutdownErr, context.DeadlineExceeded) {
				err = fmt.Errorf("control server: shutdown: %w", shutdownErr)
			}
		}
		cancel()
		<-s.serveDone
		s.httpServer = nil
		s.serveDone = nil
	}
	if holder, ok := s.binder.(listenerHolder); ok {
		holder.Release()
	}

	s.port.Store(0)
	s.setState(StateStopped)
	log.Printf("[ControlServer] stopped")
	return err
}

// IsStarted reports whether the server is bound and serving.
func (s *ControlServer) IsStarted() bool {
	return State(s.state.Load()) == StateStarted
}

// State returns the current lifecycle state.
func (s *ControlServer) State() State {
	return State(s.state.Load())
}

// Port returns the bound port, or 0 when not started.
func (s *ControlServer) Port() int {
	return int(s.port.Load())
}

func (s *ControlServer) setState(state State) {
	s.state.Store(int32(state))
	eventbus.Publish(context.Background(), s.bus, eventbus.Control.State, eventbus.SourceControlServer,
		eventbus.ControlStateEvent{State: state.String(), Port: int(s.port.Load())})
}

// ServeHTTP adapts the router to net/http. Every connection is served on its
// own goroutine by http.Server.
func (s *ControlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ControlServer] recovered from panic handling %s %s: %v", r.Method, r.URL.Path, rec)
			writeResponse(w, BadRequest{Message: msgInvalidPathOrMethod})
		}
	}()

	origin := r.Header.Get("Origin")
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}

	trusted := false
	if s.origins != nil {
		trusted = s.origins.IsTrusted(r.Context(), origin)
	}

	writeResponse(w, s.router.Route(Request{
		URI:           r.URL.RequestURI(),
		Method:        r.Method,
		TrustedOrigin: trusted,
	}))
}
