package serverapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/codescan-io/lintbridge/internal/config/store"
)

func newTestClient() *Client {
	return New(WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}))
}

func TestIsSupportedCloudSkipsProbe(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ok, err := newTestClient().IsSupported(context.Background(), store.ServerConnection{Name: "cloud", HostURL: srv.URL, IsCloud: true})
	if err != nil || !ok {
		t.Fatalf("expected cloud to be supported, got %v %v", ok, err)
	}
	if hits.Load() != 0 {
		t.Fatal("cloud connections must not be probed")
	}
}

func TestIsSupportedProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr error
	}{
		{name: "supported", status: http.StatusOK, want: true},
		{name: "missing", status: http.StatusNotFound, want: false},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: ErrUnauthorized},
		{name: "down", status: http.StatusBadGateway, wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/sonar/api/developers/search_events" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if !strings.HasPrefix(r.UserAgent(), "lintbridge/") {
					t.Errorf("unexpected user agent %q", r.UserAgent())
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"events":[]}`))
			}))
			defer srv.Close()

			got, err := newTestClient().IsSupported(context.Background(), store.ServerConnection{Name: "corp", HostURL: srv.URL + "/sonar/"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("IsSupported = (%v, %v), want %v", got, err, tt.want)
			}
		})
	}
}

func TestIsSupportedDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ok, err := newTestClient().IsSupported(context.Background(), store.ServerConnection{Name: "corp", HostURL: srv.URL})
	if ok || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v %v", ok, err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected a single request, got %d", n)
	}
}

func TestIsSupportedSendsCurrentTime(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = prev })

	var from string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		from = r.URL.Query().Get("from")
		w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient().IsSupported(context.Background(), store.ServerConnection{Name: "corp", HostURL: srv.URL}); err != nil {
		t.Fatalf("IsSupported: %v", err)
	}
	got, err := time.Parse(eventTimeLayout, from)
	if err != nil {
		t.Fatalf("from %q does not parse: %v", from, err)
	}
	if !got.Equal(fixed) {
		t.Fatalf("expected from %v, got %v", fixed, got)
	}
}

func TestSearchEventsRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		user, _, _ := r.BasicAuth()
		if user != "tok" {
			t.Errorf("expected token as basic auth user, got %q", user)
		}
		if got := r.URL.Query().Get("projects"); got != "a,b" {
			t.Errorf("unexpected projects %q", got)
		}
		if got := r.URL.Query().Get("from"); got != "2025-01-01T10:00:00+0000,2025-01-02T10:00:00+0000" {
			t.Errorf("unexpected from %q", got)
		}
		w.Write([]byte(`{"events":[
			{"category":"QUALITY_GATE","message":"later","link":"https://x/2","project":"b","date":"2025-01-03T10:00:00+0000"},
			{"category":"NEW_ISSUES","message":"earlier","link":"https://x/1","project":"a","date":"2025-01-02T10:00:00+0100"},
			{"category":"BROKEN","message":"bad date","project":"a","date":"yesterday"}
		]}`))
	}))
	defer srv.Close()

	since := map[string]time.Time{
		"a": time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		"b": time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	events, err := newTestClient().SearchEvents(context.Background(), store.ServerConnection{Name: "corp", HostURL: srv.URL, Token: "tok"}, since)
	if err != nil {
		t.Fatalf("search events: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Message != "earlier" || events[1].Message != "later" {
		t.Fatalf("events not sorted oldest first: %+v", events)
	}
	if want := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC); !events[0].Time.Equal(want) {
		t.Fatalf("expected %v, got %v", want, events[0].Time)
	}
}

func TestSearchEventsGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient().SearchEvents(context.Background(), store.ServerConnection{Name: "corp", HostURL: srv.URL},
		map[string]time.Time{"a": time.Now()})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSearchEventsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := newTestClient().SearchEvents(context.Background(), store.ServerConnection{Name: "corp", HostURL: srv.URL},
		map[string]time.Time{"a": time.Now()}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestShowHotspot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/hotspots/show" || r.URL.Query().Get("hotspot") != "AX1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"key":"AX1","message":"Make sure this is safe","status":"TO_REVIEW","line":42,
			"component":{"key":"org:proj:src/App.java","path":"src/App.java"},
			"rule":{"key":"java:S2068","name":"Credentials","securityCategory":"auth","vulnerabilityProbability":"HIGH"}}`))
	}))
	defer srv.Close()

	conn := store.ServerConnection{Name: "corp", HostURL: srv.URL}
	hotspot, err := newTestClient().ShowHotspot(context.Background(), conn, "AX1")
	if err != nil {
		t.Fatalf("show hotspot: %v", err)
	}
	if hotspot.Line != 42 || hotspot.Component.Path != "src/App.java" || hotspot.Rule.Key != "java:S2068" {
		t.Fatalf("unexpected hotspot %+v", hotspot)
	}

	if _, err := newTestClient().ShowHotspot(context.Background(), conn, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBuildURLRejectsInvalidHost(t *testing.T) {
	if _, err := buildURL("not a url", "/api", nil); err == nil {
		t.Fatal("expected error")
	}
}
