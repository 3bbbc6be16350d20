package naming

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		want        string
		wantChanged bool
	}{
		{"valid unchanged", "get_weather", "get_weather", false},
		{"valid with dash", "get-weather", "get-weather", false},
		{"empty", "", "tool", true},
		{"whitespace only", "   ", "tool", true},
		{"spaces", "Mi Tool", "Mi_Tool", true},
		{"unicode", "Mi Tool ñ", "Mi_Tool", true},
		{"punctuation runs", "a!!!b???c", "a_b_c", true},
		{"leading trailing junk", "__hello__", "hello", true},
		{"only junk", "!!!", "tool", true},
		{"leading dash", "-x", "tool-x", true},
		{"trim applied", "  ok  ", "ok", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Sanitize(tt.raw)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if changed != tt.wantChanged {
				t.Errorf("Sanitize(%q) changed = %v, want %v", tt.raw, changed, tt.wantChanged)
			}
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	got, changed := Sanitize(long)
	if len(got) != MaxNameLength {
		t.Fatalf("len = %d, want %d", len(got), MaxNameLength)
	}
	if !changed {
		t.Error("expected changed=true for truncated name")
	}
}

// Sanitize must produce a valid provider name for any input.
func TestSanitizeTotality(t *testing.T) {
	inputs := []string{
		"", " ", "...", "ñandú", "-", "--", "_-_", "名前",
		"a b c", strings.Repeat("-", 200), "\t\n", "🔥tool🔥",
	}
	for _, in := range inputs {
		got, _ := Sanitize(in)
		if !IsValid(got) {
			t.Errorf("Sanitize(%q) = %q does not match provider pattern", in, got)
		}
	}
}
