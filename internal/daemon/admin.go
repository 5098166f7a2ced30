package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	apihttp "github.com/codescan-io/lintbridge/internal/api/http"
	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/notification"
	"github.com/codescan-io/lintbridge/internal/server"
	"github.com/codescan-io/lintbridge/internal/telemetry"
	"github.com/codescan-io/lintbridge/internal/version"
)

// adminAPI serves the daemon's management endpoints.
type adminAPI struct {
	store    *store.Store
	bus      *eventbus.Bus
	info     *RuntimeInfo
	control  *server.ControlServer
	feed     *notification.Feed
	manager  *notification.Manager
	alerts   *notification.Alerts
	counters *telemetry.Counters
	metrics  http.Handler
	shutdown func()

	mu      sync.Mutex
	baseCtx context.Context
}

func (a *adminAPI) ctx() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.baseCtx == nil {
		return context.Background()
	}
	return a.baseCtx
}

func (a *adminAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/state", a.handleState)
	mux.HandleFunc("GET /v1/alerts", a.handleAlerts)
	mux.HandleFunc("POST /v1/alerts/{id}/open", a.handleAlertOpen)
	mux.HandleFunc("POST /v1/alerts/{id}/configure", a.handleAlertConfigure)
	mux.HandleFunc("GET /v1/telemetry", a.handleTelemetry)
	mux.HandleFunc("POST /v1/notifications/poll", a.handlePollNow)
	mux.HandleFunc("GET /v1/events", a.handleEvents)
	mux.HandleFunc("POST /daemon/shutdown", a.handleShutdown)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Admin] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apihttp.ErrorResponse{Error: msg})
}

func (a *adminAPI) handleState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.StoreQueryTimeout)
	defer cancel()

	projects, err := a.store.ListProjects(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	settings := a.info.Settings()
	resp := apihttp.StateResponse{
		Version:   version.String(),
		IDE:       settings.IDE.Name,
		StartedAt: a.info.StartTime(),
		Control: apihttp.ControlState{
			State:   a.control.State().String(),
			Port:    a.control.Port(),
			Enabled: settings.Control.Enabled,
		},
		Notifications: apihttp.NotificationsState{
			Enabled:       a.manager.Enabled(),
			PollInterval:  a.feed.Interval().String(),
			Registrations: a.feed.Count(),
			Polls:         a.feed.Polls(),
		},
		Projects: make([]apihttp.ProjectState, 0, len(projects)),
	}
	for _, p := range projects {
		state := apihttp.ProjectState{
			Name:       p.Name,
			Open:       p.Open,
			Connection: p.ConnectionName,
			ProjectKey: p.ProjectKey,
		}
		if sub, ok := a.manager.Subscriber(p.Name); ok {
			state.Subscribed = true
			state.Registered = sub.Registered()
			if last, err := notification.NewProjectTime(a.store, p.Name).Get(ctx); err == nil {
				state.LastPoll = last.Format(time.RFC3339)
			}
		}
		resp.Projects = append(resp.Projects, state)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *adminAPI) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	recent := a.alerts.Recent()
	resp := apihttp.AlertsResponse{Alerts: make([]apihttp.Alert, 0, len(recent))}
	for _, alert := range recent {
		resp.Alerts = append(resp.Alerts, *alertDTO(alert))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *adminAPI) handleAlertOpen(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := a.alerts.Open(r.Context(), id)
	switch {
	case errors.Is(err, notification.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("alert %s not found", id))
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *adminAPI) handleAlertConfigure(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	target, err := a.alerts.Configure(r.Context(), id)
	switch {
	case errors.Is(err, notification.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("alert %s not found", id))
	case store.IsNotFound(err):
		writeError(w, http.StatusGone, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, apihttp.ConfigureResponse{
			Connection: target.Connection.Name,
			HostURL:    target.Connection.HostURL,
			Focus:      target.Focus,
		})
	}
}

func (a *adminAPI) handleTelemetry(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apihttp.TelemetryResponse{Counters: a.counters.Snapshot()})
}

func (a *adminAPI) handlePollNow(w http.ResponseWriter, _ *http.Request) {
	a.feed.PollNow()
	w.WriteHeader(http.StatusAccepted)
}

func (a *adminAPI) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	if a.shutdown != nil {
		go a.shutdown()
	}
}

// adminService serves the admin API on a unix socket.
type adminService struct {
	socketPath string
	api        *adminAPI

	mu       sync.Mutex
	server   *http.Server
	serveErr chan error
}

func newAdminService(socketPath string, api *adminAPI) *adminService {
	return &adminService{socketPath: socketPath, api: api, serveErr: make(chan error, 1)}
}

func listenUnix(path string) (net.Listener, error) {
	if path == "" {
		return nil, errors.New("socket path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return ln, nil
}

func (s *adminService) Start(ctx context.Context) error {
	ln, err := listenUnix(s.socketPath)
	if err != nil {
		return fmt.Errorf("admin api: %w", err)
	}
	s.api.mu.Lock()
	s.api.baseCtx = ctx
	s.api.mu.Unlock()

	srv := &http.Server{
		Handler:           s.api.handler(),
		ReadHeaderTimeout: constants.Duration5Seconds,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.serveErr <- err:
			default:
			}
		}
	}()
	log.Printf("[Admin] listening on %s", s.socketPath)
	return nil
}

func (s *adminService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			srv.Close()
			if !errors.Is(shutdownErr, context.DeadlineExceeded) {
				err = shutdownErr
			}
		}
	}
	if rmErr := os.Remove(s.socketPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = fmt.Errorf("admin api: remove socket: %w", rmErr)
	}
	return err
}

func (s *adminService) Errors() <-chan error {
	return s.serveErr
}
