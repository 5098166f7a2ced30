package procutil

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Fatal("own process reported dead")
	}
	if IsProcessAlive(1<<30 - 1) {
		t.Fatal("impossible pid reported alive")
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "daemon.lock")

	if _, err := ReadPIDFile(path); !errors.Is(err, ErrNoPIDFile) {
		t.Fatalf("expected ErrNoPIDFile, got %v", err)
	}
	if err := WritePIDFile(path, os.Getpid()); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); runtime.GOOS != "windows" && perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
	if pid, ok := Running(path); !ok || pid != os.Getpid() {
		t.Fatalf("expected running pid %d, got %d ok=%v", os.Getpid(), pid, ok)
	}
	RemovePIDFile(path)
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file not removed: %v", err)
	}
}

func TestRunningRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{name: "dead pid", content: "1073741823"},
		{name: "garbage", content: "not-a-pid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".lock")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, ok := Running(path); ok {
				t.Fatal("stale pid reported running")
			}
			if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("stale file kept: %v", err)
			}
		})
	}
}

func TestTerminateByPID(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sleep")
	}
	cmd := exec.Command("sleep", "300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	if err := TerminateByPID(pid); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	_ = cmd.Wait()
	time.Sleep(50 * time.Millisecond)
	if IsProcessAlive(pid) {
		t.Fatal("process alive after terminate")
	}
}
