package server

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/codescan-io/lintbridge/internal/config"
)

type stubIDE struct {
	identity config.IDESettings
	projects []string
}

func (s stubIDE) Identity() config.IDESettings { return s.identity }
func (s stubIDE) OpenProjectNames() []string   { return s.projects }

type hotspotCall struct {
	project, hotspot, server string
}

type recordingOpener struct {
	calls []hotspotCall
}

func (r *recordingOpener) Open(projectKey, hotspotKey, serverURL string) {
	r.calls = append(r.calls, hotspotCall{projectKey, hotspotKey, serverURL})
}

type queueDispatcher struct {
	pending []func()
	reject  bool
}

func (q *queueDispatcher) InvokeLater(fn func()) bool {
	if q.reject {
		return false
	}
	q.pending = append(q.pending, fn)
	return true
}

func (q *queueDispatcher) runAll() {
	for _, fn := range q.pending {
		fn()
	}
	q.pending = nil
}

func newTestRouter() (*Router, *recordingOpener, *queueDispatcher) {
	ide := stubIDE{
		identity: config.IDESettings{Name: "IntelliJ IDEA", Version: "2024.1", Edition: "Community Edition"},
		projects: []string{"alpha", "beta"},
	}
	opener := &recordingOpener{}
	dispatcher := &queueDispatcher{}
	return NewRouter(ide, opener, dispatcher), opener, dispatcher
}

func TestRequestPathAndParameters(t *testing.T) {
	req := Request{URI: "/sonarlint/api/hotspots/show?project=a%20b&hotspot=h1&hotspot=h2&server=https%3A%2F%2Fx&empty="}

	if got := req.Path(); got != "/sonarlint/api/hotspots/show" {
		t.Fatalf("unexpected path %q", got)
	}

	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"project", "a b", true},
		{"hotspot", "h1", true},
		{"server", "https://x", true},
		{"empty", "", true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		got, ok := req.Parameter(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Parameter(%q) = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}

	if _, ok := (Request{URI: "/no/query"}).Parameter("project"); ok {
		t.Fatal("expected no parameters without a query")
	}
}

func TestRouteUnknownPath(t *testing.T) {
	router, _, _ := newTestRouter()

	for _, trusted := range []bool{true, false} {
		tests := []Request{
			{URI: "/unknown", Method: "GET", TrustedOrigin: trusted},
			{URI: "/sonarlint/api/status", Method: "POST", TrustedOrigin: trusted},
			{URI: "/sonarlint/api/hotspots/show?project=p", Method: "DELETE", TrustedOrigin: trusted},
		}
		for _, req := range tests {
			resp := router.Route(req)
			want := BadRequest{Message: "Invalid path or method."}
			if !reflect.DeepEqual(resp, want) {
				t.Errorf("Route(%s %s) = %#v, want %#v", req.Method, req.URI, resp, want)
			}
		}
	}
}

func TestRouteStatus(t *testing.T) {
	router, _, _ := newTestRouter()

	tests := []struct {
		name    string
		trusted bool
		want    Status
	}{
		{
			name:    "trusted",
			trusted: true,
			want:    Status{IDEName: "IntelliJ IDEA", Description: "2024.1 (Community Edition) - alpha, beta"},
		},
		{
			name:    "untrusted",
			trusted: false,
			want:    Status{IDEName: "IntelliJ IDEA", Description: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := router.Route(Request{URI: "/sonarlint/api/status", Method: "GET", TrustedOrigin: tt.trusted})
			success, ok := resp.(Success)
			if !ok {
				t.Fatalf("expected Success, got %#v", resp)
			}
			var got Status
			if err := json.Unmarshal([]byte(success.Body), &got); err != nil {
				t.Fatalf("decode status: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDescribeWithoutEditionOrProjects(t *testing.T) {
	if got := describe(config.IDESettings{Version: "1.0"}, nil); got != "1.0" {
		t.Fatalf("unexpected description %q", got)
	}
	if got := describe(config.IDESettings{Version: "1.0"}, []string{"p"}); got != "1.0 - p" {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestRouteShowHotspotMissingParameters(t *testing.T) {
	router, opener, dispatcher := newTestRouter()

	tests := []struct {
		uri  string
		want string
	}{
		{"/sonarlint/api/hotspots/show", "The 'project' parameter is not specified"},
		{"/sonarlint/api/hotspots/show?hotspot=h&server=s", "The 'project' parameter is not specified"},
		{"/sonarlint/api/hotspots/show?project=p&server=s", "The 'hotspot' parameter is not specified"},
		{"/sonarlint/api/hotspots/show?project=p&hotspot=h", "The 'server' parameter is not specified"},
	}
	for _, tt := range tests {
		resp := router.Route(Request{URI: tt.uri, Method: "GET", TrustedOrigin: true})
		if !reflect.DeepEqual(resp, BadRequest{Message: tt.want}) {
			t.Errorf("Route(%s) = %#v, want message %q", tt.uri, resp, tt.want)
		}
	}
	if len(dispatcher.pending) != 0 || len(opener.calls) != 0 {
		t.Fatal("no hotspot must be dispatched for invalid requests")
	}
}

func TestRouteShowHotspotDispatchesAsynchronously(t *testing.T) {
	router, opener, dispatcher := newTestRouter()

	resp := router.Route(Request{
		URI:    "/sonarlint/api/hotspots/show?project=org%3Aproj&hotspot=AX1&server=https%3A%2F%2Fmy.sonar.com",
		Method: "GET",
	})
	if !reflect.DeepEqual(resp, Success{}) {
		t.Fatalf("expected empty Success, got %#v", resp)
	}
	if len(opener.calls) != 0 {
		t.Fatal("hotspot must not be opened before the dispatcher runs")
	}

	dispatcher.runAll()
	want := []hotspotCall{{"org:proj", "AX1", "https://my.sonar.com"}}
	if !reflect.DeepEqual(opener.calls, want) {
		t.Fatalf("got %+v, want %+v", opener.calls, want)
	}
}

func TestRouteShowHotspotSucceedsWhenDispatcherRejects(t *testing.T) {
	router, _, dispatcher := newTestRouter()
	dispatcher.reject = true

	resp := router.Route(Request{URI: "/sonarlint/api/hotspots/show?project=p&hotspot=h&server=s", Method: "GET"})
	if !reflect.DeepEqual(resp, Success{}) {
		t.Fatalf("expected Success, got %#v", resp)
	}
}
