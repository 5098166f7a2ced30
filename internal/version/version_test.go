package version

import (
	"strings"
	"testing"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"dev", "dev"},
		{"1.2.0", "v1.2.0"},
		{"v1.2.0", "v1.2.0"},
	}
	for _, tt := range tests {
		if got := FormatVersion(tt.in); got != tt.want {
			t.Errorf("FormatVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckVersionMismatch(t *testing.T) {
	restore := ForTesting("1.2.0")
	defer restore()

	if msg := CheckVersionMismatch("v1.2.0-3-gabc123"); msg != "" {
		t.Fatalf("expected no warning for git-describe suffix, got %q", msg)
	}
	if msg := CheckVersionMismatch("dev"); msg != "" {
		t.Fatalf("expected no warning for dev daemon, got %q", msg)
	}
	msg := CheckVersionMismatch("1.3.0")
	if !strings.Contains(msg, "v1.3.0") {
		t.Fatalf("expected mismatch warning mentioning daemon version, got %q", msg)
	}
}

func TestUserAgent(t *testing.T) {
	restore := ForTesting("v1.4.2")
	defer restore()

	ua := UserAgent()
	if !strings.HasPrefix(ua, "lintbridge/1.4.2 (") {
		t.Fatalf("unexpected user agent %q", ua)
	}
}
