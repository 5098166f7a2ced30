package ide

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/codescan-io/lintbridge/internal/config"
	"github.com/codescan-io/lintbridge/internal/config/store"
)

type stubProjects struct {
	projects []store.Project
	err      error
}

func (s stubProjects) ListProjects(context.Context) ([]store.Project, error) {
	return s.projects, s.err
}

func TestOpenProjectNames(t *testing.T) {
	info := NewInfo(config.IDESettings{Name: "ide"}, stubProjects{projects: []store.Project{
		{Name: "alpha", Open: true},
		{Name: "beta"},
		{Name: "gamma", Open: true},
	}})

	if got := info.OpenProjectNames(); !reflect.DeepEqual(got, []string{"alpha", "gamma"}) {
		t.Fatalf("unexpected open projects %v", got)
	}
}

func TestOpenProjectNamesOnError(t *testing.T) {
	info := NewInfo(config.IDESettings{}, stubProjects{err: errors.New("locked")})
	if got := info.OpenProjectNames(); len(got) != 0 {
		t.Fatalf("expected no projects, got %v", got)
	}
}

func TestSetIdentity(t *testing.T) {
	info := NewInfo(config.IDESettings{Name: "a", Version: "1"}, nil)
	info.SetIdentity(config.IDESettings{Name: "b", Version: "2", Edition: "Ultimate"})
	if got := info.Identity(); got.Name != "b" || got.Edition != "Ultimate" {
		t.Fatalf("unexpected identity %+v", got)
	}
}
