package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateToTokens(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      string
	}{
		{"zero budget", "anything", 0, ""},
		{"negative budget", "anything", -1, ""},
		{"fits", "short", 10, "short"},
		{"exact", "12345678", 2, "12345678"},
		{"clipped", "123456789", 2, "12345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateToTokens(tt.text, tt.maxTokens)
			if got != tt.want {
				t.Errorf("TruncateToTokens(%q, %d) = %q, want %q", tt.text, tt.maxTokens, got, tt.want)
			}
		})
	}
}

func TestTruncateToTokensRuneBoundary(t *testing.T) {
	// "£" is two bytes; an 8-byte cut would land mid-rune without backoff.
	text := strings.Repeat("£", 10)
	got := TruncateToTokens(text, 2)

	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got)
	}
	if len(got) > 8 {
		t.Errorf("truncated to %d bytes, want at most 8", len(got))
	}
	if got != strings.Repeat("£", 4) {
		t.Errorf("got %q, want four complete runes", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
	if got := EstimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("EstimateTokens(400 chars) = %d, want 100", got)
	}
}
