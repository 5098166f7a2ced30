// Package sanitize cleans text received from servers before it reaches a
// terminal or the event stream.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageRunes caps notification message bodies.
const MaxMessageRunes = 1024

// Message strips control sequences from a server message and caps its length.
func Message(s string) string {
	return TrimToRunes(StripControlChars(s), MaxMessageRunes)
}

// StripControlChars removes ANSI escape sequences and non-printable control
// characters (except newline and tab) from s.
func StripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		// CSI: ESC [ ... final byte (0x40-0x7E), scan capped at 64 bytes.
		if i+1 < len(s) && s[i] == '\x1b' && s[i+1] == '[' {
			j := i + 2
			maxJ := min(j+64, len(s))
			for j < maxJ && (s[j] < 0x40 || s[j] > 0x7E) {
				j++
			}
			if j < len(s) && s[j] >= 0x40 && s[j] <= 0x7E {
				j++
			}
			i = j
			continue
		}
		// OSC: ESC ] ... terminated by BEL or ESC \.
		if i+1 < len(s) && s[i] == '\x1b' && s[i+1] == ']' {
			j := i + 2
			for j < len(s) {
				if s[j] == '\x07' {
					j++
					break
				}
				if j+1 < len(s) && s[j] == '\x1b' && s[j+1] == '\\' {
					j += 2
					break
				}
				j++
			}
			i = j
			continue
		}
		if s[i] == '\x1b' {
			i = min(i+2, len(s))
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == '\n' || r == '\t' || (r >= ' ' && !unicode.IsControl(r)) {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// TrimToRunes trims surrounding whitespace and limits result to maxRunes.
func TrimToRunes(value string, maxRunes int) string {
	value = strings.TrimSpace(value)
	if value == "" || maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(value) <= maxRunes {
		return value
	}
	return string([]rune(value)[:maxRunes])
}

// Ellipsize folds s onto one line and shortens it to maxRunes, marking the
// cut with "...".
func Ellipsize(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return TrimToRunes(s, maxRunes)
	}
	return TrimToRunes(s, maxRunes-3) + "..."
}
