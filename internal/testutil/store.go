// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	configstore "github.com/codescan-io/lintbridge/internal/config/store"
)

// OpenStore creates a temporary config store closed when the test ends.
func OpenStore(t *testing.T) *configstore.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "config.db")
	store, err := configstore.Open(configstore.Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// ShortTempDir returns a temp dir with a short path so unix socket paths
// stay under the platform limit.
func ShortTempDir(t *testing.T, prefix string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}
