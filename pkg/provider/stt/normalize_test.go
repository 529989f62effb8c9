package stt

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		final bool
		want  string
	}{
		{"capitalises first letter", "hello world", false, "Hello world"},
		{"appends terminal punctuation on final", "hello world", true, "Hello world."},
		{"keeps existing punctuation", "hello world!", true, "Hello world!"},
		{"keeps question mark", "are you there?", true, "Are you there?"},
		{"collapses whitespace", "  hello \t world ", false, "Hello world"},
		{"empty input", "   ", true, ""},
		{"non-letter first rune unchanged", "42 is the answer", false, "42 is the answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.raw, tt.final); got != tt.want {
				t.Errorf("Normalize(%q, %v) = %q, want %q", tt.raw, tt.final, got, tt.want)
			}
		})
	}
}

func TestDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous string
		next     string
		want     string
	}{
		{"pure suffix", "Hello", "Hello world", " world"},
		{"empty previous", "", "Hello", "Hello"},
		{"empty next", "Hello", "", ""},
		{"revision keeps common prefix", "Hello warld", "Hello world", "orld"},
		{"identical", "Hello", "Hello", ""},
		{"multibyte common prefix", "héllo", "héllo wörld", " wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Delta(tt.previous, tt.next); got != tt.want {
				t.Errorf("Delta(%q, %q) = %q, want %q", tt.previous, tt.next, got, tt.want)
			}
		})
	}
}
