package sanitize

import (
	"strings"
	"testing"
)

func TestStripControlChars(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Quality Gate failed", "Quality Gate failed"},
		{"csi colour", "\x1b[31mfailed\x1b[0m", "failed"},
		{"osc title", "\x1b]0;pwned\x07message", "message"},
		{"osc st terminator", "\x1b]8;;http://x\x1b\\link", "link"},
		{"bare escape", "a\x1bcb", "ab"},
		{"keeps newline and tab", "line1\n\tline2", "line1\n\tline2"},
		{"drops bell and form feed", "a\x07b\x0cc", "abc"},
		{"unterminated csi", "x\x1b[" + strings.Repeat("1", 100), "x" + strings.Repeat("1", 36)},
		{"utf8 kept", "ok ✓", "ok ✓"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripControlChars(tt.input)
			if got != tt.want {
				t.Errorf("StripControlChars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrimToRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{"trim and keep", "  hello  ", 10, "hello"},
		{"truncate ascii", "hello world", 5, "hello"},
		{"truncate utf8", "żółć", 3, "żół"},
		{"empty after trim", "   ", 10, ""},
		{"zero max", "hello", 0, ""},
		{"negative max", "hello", -1, ""},
		{"long unchanged", strings.Repeat("a", 8), 8, strings.Repeat("a", 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimToRunes(tt.input, tt.maxRunes)
			if got != tt.want {
				t.Errorf("TrimToRunes(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.want)
			}
		})
	}
}

func TestEllipsize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		maxRunes int
		want     string
	}{
		{"short", 10, "short"},
		{"multi\nline   text", 40, "multi line text"},
		{"Quality Gate failed on alpha", 12, "Quality G..."},
		{"żółćżółć", 5, "żó..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Ellipsize(tt.input, tt.maxRunes); got != tt.want {
			t.Errorf("Ellipsize(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.want)
		}
	}
}

func TestMessageCapsLength(t *testing.T) {
	t.Parallel()
	got := Message("\x1b[1m" + strings.Repeat("x", MaxMessageRunes+50))
	if len([]rune(got)) != MaxMessageRunes {
		t.Fatalf("expected %d runes, got %d", MaxMessageRunes, len([]rune(got)))
	}
	if strings.Contains(got, "\x1b") {
		t.Fatal("escape sequence survived")
	}
}
