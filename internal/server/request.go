package server

import (
	"net/url"
	"strings"
)

// Request is the parsed form of an inbound control request.
type Request struct {
	URI           string
	Method        string
	TrustedOrigin bool
}

// Path returns the URI up to the query delimiter.
func (r Request) Path() string {
	path, _, _ := strings.Cut(r.URI, "?")
	return path
}

// Parameter returns the first value of the named query parameter. Later
// occurrences of the same key are ignored.
func (r Request) Parameter(name string) (string, bool) {
	_, rawQuery, found := strings.Cut(r.URI, "?")
	if !found {
		return "", false
	}
	// ParseQuery keeps every well-formed pair even when it reports an error
	// for a malformed one.
	values, _ := url.ParseQuery(rawQuery)
	v, ok := values[name]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}
