package stt

import (
	"strings"
	"unicode/utf8"
)

// Normalize collapses whitespace and capitalises the first letter of a raw
// decode. When final is true, terminal punctuation is appended if missing.
func Normalize(raw string, final bool) string {
	trimmed := strings.Join(strings.Fields(raw), " ")
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed) + 1)
	for i, r := range trimmed {
		if i == 0 && r >= 'a' && r <= 'z' {
			b.WriteRune(r - 'a' + 'A')
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()

	if final && !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "!") && !strings.HasSuffix(out, "?") {
		out += "."
	}
	return out
}

// Delta returns the suffix of next that was not present in previous, so that
// repeated decodes over a growing audio buffer emit only new text. When the
// decoder revises earlier words, the common rune prefix is kept and the
// divergent tail is returned.
func Delta(previous, next string) string {
	if next == "" {
		return ""
	}
	if previous == "" {
		return next
	}
	if suffix, ok := strings.CutPrefix(next, previous); ok {
		return suffix
	}

	pi, ni := 0, 0
	for pi < len(previous) && ni < len(next) {
		pr, psz := utf8.DecodeRuneInString(previous[pi:])
		nr, nsz := utf8.DecodeRuneInString(next[ni:])
		if pr != nr {
			break
		}
		pi += psz
		ni += nsz
	}
	return next[ni:]
}
