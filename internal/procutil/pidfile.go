// Package procutil manages the daemon PID file and signals the process it names.
package procutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoPIDFile is returned when no daemon PID file exists.
var ErrNoPIDFile = errors.New("procutil: pid file not found")

// WritePIDFile writes pid to path with owner-only permissions.
func WritePIDFile(path string, pid int) error {
	if path == "" {
		return errors.New("procutil: pid file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("procutil: create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("procutil: write pid file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the pid stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNoPIDFile
	}
	if err != nil {
		return 0, fmt.Errorf("procutil: read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("procutil: malformed pid file %s", path)
	}
	return pid, nil
}

// RemovePIDFile deletes path, ignoring a missing file.
func RemovePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// Running reports the pid recorded at path if that process is alive. Stale
// files are removed.
func Running(path string) (int, bool) {
	pid, err := ReadPIDFile(path)
	if err != nil {
		if !errors.Is(err, ErrNoPIDFile) {
			RemovePIDFile(path)
		}
		return 0, false
	}
	if !IsProcessAlive(pid) {
		RemovePIDFile(path)
		return 0, false
	}
	return pid, true
}
