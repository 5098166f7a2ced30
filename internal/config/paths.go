package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultInstance = "default"

	homeEnv = "LINTBRIDGE_HOME"
)

// InstancePaths contains all paths for a lintbridge instance.
type InstancePaths struct {
	Home         string // Instance home directory
	ConfigDB     string // SQLite configuration store path
	Settings     string // YAML settings file path
	Socket       string // Admin API unix socket path
	HealthSocket string // gRPC health unix socket path
	Lock         string // Daemon lock file path
	Logs         string // Logs directory
}

// GetInstancePaths returns all paths for a given instance.
// Empty instance name defaults to "default".
func GetInstancePaths(instanceName string) InstancePaths {
	if instanceName == "" {
		instanceName = DefaultInstance
	}

	instanceDir := filepath.Join(GetHome(), "instances", instanceName)

	return InstancePaths{
		Home:         instanceDir,
		ConfigDB:     filepath.Join(instanceDir, "config.db"),
		Settings:     filepath.Join(instanceDir, "settings.yaml"),
		Socket:       filepath.Join(instanceDir, "lintbridge.sock"),
		HealthSocket: filepath.Join(instanceDir, "health.sock"),
		Lock:         filepath.Join(instanceDir, "daemon.lock"),
		Logs:         filepath.Join(instanceDir, "logs"),
	}
}

// GetHome returns the lintbridge home directory (~/.lintbridge), honouring
// LINTBRIDGE_HOME when set.
func GetHome() string {
	if override := strings.TrimSpace(os.Getenv(homeEnv)); override != "" {
		return ExpandPath(override)
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".lintbridge")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureInstanceDirs creates the directory structure for the given instance if it does not exist.
func EnsureInstanceDirs(instanceName string) (InstancePaths, error) {
	paths := GetInstancePaths(instanceName)

	for _, dir := range []string{paths.Home, paths.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}

	return paths, nil
}
