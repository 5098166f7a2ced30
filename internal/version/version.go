// Package version reports the build version and compares it with the one a
// running daemon advertises.
package version

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// Set with -ldflags "-X github.com/codescan-io/lintbridge/internal/version.version=...".
var (
	version = "dev"
	commit  = ""
)

// String returns the build version for the current binary.
func String() string {
	return version
}

// Commit returns the VCS revision baked in at build time, if any.
func Commit() string {
	return commit
}

// UserAgent identifies lintbridge in requests to analysis servers.
func UserAgent() string {
	return fmt.Sprintf("lintbridge/%s (%s/%s)", strings.TrimPrefix(version, "v"), runtime.GOOS, runtime.GOARCH)
}

// ForTesting swaps the version string until the returned func runs.
// Not safe for parallel tests.
func ForTesting(v string) func() {
	prev := version
	version = v
	return func() { version = prev }
}

// describeSuffix matches the "-N-gHASH" tail of git describe output.
var describeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)

func release(v string) string {
	return describeSuffix.ReplaceAllString(strings.TrimPrefix(v, "v"), "")
}

func isDev(v string) bool {
	return v == "" || v == "dev"
}

// FormatVersion prefixes release versions with "v". Development builds are
// returned unchanged.
func FormatVersion(v string) string {
	if isDev(v) || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// CheckVersionMismatch returns a warning when the CLI and daemon were built
// from different releases. Development builds never warn.
func CheckVersionMismatch(daemonVersion string) string {
	if isDev(version) || isDev(daemonVersion) {
		return ""
	}
	if release(version) == release(daemonVersion) {
		return ""
	}
	return fmt.Sprintf("WARNING: lintbridge %s is talking to lintbridged %s, restart the daemon",
		FormatVersion(version), FormatVersion(daemonVersion))
}
