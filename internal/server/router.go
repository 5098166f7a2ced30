package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/codescan-io/lintbridge/internal/config"
	"github.com/codescan-io/lintbridge/internal/constants"
)

// Status is the payload of the status endpoint.
type Status struct {
	IDEName     string `json:"ideName"`
	Description string `json:"description"`
}

// IDEInfo exposes the identity and open projects of the running IDE.
type IDEInfo interface {
	Identity() config.IDESettings
	OpenProjectNames() []string
}

// HotspotOpener opens a security hotspot in the IDE.
type HotspotOpener interface {
	Open(projectKey, hotspotKey, serverURL string)
}

// Dispatcher runs fn asynchronously on the application thread. It reports
// false when fn was not accepted.
type Dispatcher interface {
	InvokeLater(fn func()) bool
}

// Router matches requests against the known endpoints.
type Router struct {
	ide        IDEInfo
	hotspots   HotspotOpener
	dispatcher Dispatcher
}

// NewRouter constructs a router.
func NewRouter(ide IDEInfo, hotspots HotspotOpener, dispatcher Dispatcher) *Router {
	return &Router{ide: ide, hotspots: hotspots, dispatcher: dispatcher}
}

// Route produces the response for req. It never panics on malformed input.
func (r *Router) Route(req Request) Response {
	if req.Method != http.MethodGet {
		return BadRequest{Message: msgInvalidPathOrMethod}
	}
	switch req.Path() {
	case constants.StatusEndpoint:
		return r.status(req.TrustedOrigin)
	case constants.ShowHotspotEndpoint:
		return r.showHotspot(req)
	default:
		return BadRequest{Message: msgInvalidPathOrMethod}
	}
}

func (r *Router) status(trusted bool) Response {
	identity := r.ide.Identity()
	status := Status{IDEName: identity.Name}
	if trusted {
		status.Description = describe(identity, r.ide.OpenProjectNames())
	}
	body, err := json.Marshal(status)
	if err != nil {
		log.Printf("[ControlServer] failed to encode status: %v", err)
		return Success{}
	}
	return Success{Body: string(body)}
}

func describe(identity config.IDESettings, projects []string) string {
	var b strings.Builder
	b.WriteString(identity.Version)
	if identity.Edition != "" {
		b.WriteString(" (" + identity.Edition + ")")
	}
	if len(projects) > 0 {
		b.WriteString(" - ")
		b.WriteString(strings.Join(projects, ", "))
	}
	return b.String()
}

func (r *Router) showHotspot(req Request) Response {
	projectKey, ok := req.Parameter(constants.ParamProject)
	if !ok {
		return missingParameter(constants.ParamProject)
	}
	hotspotKey, ok := req.Parameter(constants.ParamHotspot)
	if !ok {
		return missingParameter(constants.ParamHotspot)
	}
	serverURL, ok := req.Parameter(constants.ParamServer)
	if !ok {
		return missingParameter(constants.ParamServer)
	}

	accepted := r.dispatcher.InvokeLater(func() {
		r.hotspots.Open(projectKey, hotspotKey, serverURL)
	})
	if !accepted {
		log.Printf("[ControlServer] dropped show hotspot request %s for %s: dispatcher unavailable", hotspotKey, projectKey)
	}
	return Success{}
}
