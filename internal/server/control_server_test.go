package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/portbind"
)

type fakeBinder struct {
	accept map[int]bool
	tried  []int
}

func (f *fakeBinder) BindTo(port int) bool {
	f.tried = append(f.tried, port)
	return f.accept[port]
}

func (f *fakeBinder) triedPort(port int) bool {
	for _, p := range f.tried {
		if p == port {
			return true
		}
	}
	return false
}

func newFakeServer(b portbind.Binder, opts ...Option) *ControlServer {
	router, _, _ := newTestRouter()
	return NewControlServer(router, NewOriginValidator(&stubLister{}), append([]Option{WithBinder(b)}, opts...)...)
}

func TestStartOnceBindsFirstPort(t *testing.T) {
	b := &fakeBinder{accept: map[int]bool{64120: true}}
	s := newFakeServer(b)

	if err := s.StartOnce(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsStarted() || s.Port() != 64120 {
		t.Fatalf("expected started on 64120, got started=%v port=%d", s.IsStarted(), s.Port())
	}
}

func TestStartOnceFallsBackToNextPort(t *testing.T) {
	b := &fakeBinder{accept: map[int]bool{64121: true}}
	s := newFakeServer(b)

	if err := s.StartOnce(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsStarted() || s.Port() != 64121 {
		t.Fatalf("expected started on 64121, got started=%v port=%d", s.IsStarted(), s.Port())
	}
	if b.triedPort(64122) {
		t.Fatal("no port after the bound one may be attempted")
	}
}

func TestStartOnceGivesUpAfterRange(t *testing.T) {
	b := &fakeBinder{accept: map[int]bool{}}
	s := newFakeServer(b)

	err := s.StartOnce()
	if !errors.Is(err, portbind.ErrRangeExhausted) {
		t.Fatalf("expected range exhausted, got %v", err)
	}
	if s.IsStarted() || s.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", s.State())
	}
	if !b.triedPort(64130) || b.triedPort(64131) {
		t.Fatalf("expected attempts up to 64130 only, got %v", b.tried)
	}

	attempts := len(b.tried)
	if err := s.StartOnce(); !errors.Is(err, portbind.ErrRangeExhausted) {
		t.Fatalf("expected sticky exhaustion, got %v", err)
	}
	if len(b.tried) != attempts {
		t.Fatal("exhausted range must not be retried")
	}
}

func TestStartOnceIsIdempotent(t *testing.T) {
	b := &fakeBinder{accept: map[int]bool{64120: true}}
	s := newFakeServer(b)

	if err := s.StartOnce(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.StartOnce(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if len(b.tried) != 1 {
		t.Fatalf("expected a single bind attempt, got %v", b.tried)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.IsStarted() || s.Port() != 0 {
		t.Fatal("expected stopped server after Stop")
	}
	if err := s.StartOnce(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !s.IsStarted() {
		t.Fatal("expected restart to succeed")
	}
}

func TestStartOncePublishesState(t *testing.T) {
	bus := eventbus.New()
	sub := eventbus.SubscribeTo(bus, eventbus.Control.State)
	defer sub.Close()

	s := newFakeServer(&fakeBinder{accept: map[int]bool{64120: true}}, WithEventBus(bus))
	if err := s.StartOnce(); err != nil {
		t.Fatalf("start: %v", err)
	}

	var states []string
	timeout := time.After(time.Second)
	for len(states) < 2 {
		select {
		case env := <-sub.C():
			states = append(states, env.Payload.State)
			if env.Payload.State == "started" && env.Payload.Port != 64120 {
				t.Fatalf("expected port in started event, got %d", env.Payload.Port)
			}
		case <-timeout:
			t.Fatalf("timed out, got states %v", states)
		}
	}
	if states[0] != "starting" || states[1] != "started" {
		t.Fatalf("unexpected states %v", states)
	}
}

func TestServeHTTPSetsCORSAndTrust(t *testing.T) {
	router, _, _ := newTestRouter()
	lister := &stubLister{conns: []store.ServerConnection{{Name: "corp", HostURL: "https://my.sonar.com"}}}
	s := NewControlServer(router, NewOriginValidator(lister))

	req := httptest.NewRequest(http.MethodGet, "/sonarlint/api/status", nil)
	req.Header.Set("Origin", "https://my.sonar.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://my.sonar.com" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if body := rec.Body.String(); body != `{"ideName":"IntelliJ IDEA","description":"2024.1 (Community Edition) - alpha, beta"}` {
		t.Fatalf("unexpected body %s", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/sonarlint/api/hotspots/show?project=p", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "The 'hotspot' parameter is not specified" {
		t.Fatalf("unexpected body %q", body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("no CORS header expected without Origin")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestControlServerServesOverLoopback(t *testing.T) {
	port := freePort(t)
	router, _, _ := newTestRouter()
	s := NewControlServer(router, NewOriginValidator(&stubLister{}), WithPortRange(portbind.Range{Start: port, End: port}))

	if err := s.StartOnce(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/sonarlint/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(body) != `{"ideName":"IntelliJ IDEA","description":""}` {
		t.Fatalf("unexpected body %s", body)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := client.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/sonarlint/api/status"); err == nil {
		t.Fatal("expected connection failure after stop")
	}
}
