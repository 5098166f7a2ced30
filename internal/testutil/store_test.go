package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	configstore "github.com/codescan-io/lintbridge/internal/config/store"
)

func TestOpenStore(t *testing.T) {
	s := OpenStore(t)
	ctx := context.Background()
	if err := s.SaveConnection(ctx, configstore.ServerConnection{Name: "corp", HostURL: "https://sonar.corp.example"}); err != nil {
		t.Fatalf("save connection: %v", err)
	}
	if _, err := s.GetConnection(ctx, "corp"); err != nil {
		t.Fatalf("get connection: %v", err)
	}
}

func TestShortTempDir(t *testing.T) {
	dir := ShortTempDir(t, "lb")
	if len(filepath.Join(dir, "daemon.sock")) > 100 {
		t.Fatalf("socket path too long: %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected dir %s: %v", dir, err)
	}
}
