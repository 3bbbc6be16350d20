// Package naming normalizes user-supplied tool names into identifiers that
// model providers accept for function calling.
//
// Provider function names must match ^[A-Za-z0-9_-]{1,64}$. Assistant
// configurations routinely carry names with spaces, unicode, or punctuation;
// Sanitize maps every possible input onto that pattern deterministically.
package naming

import (
	"regexp"
	"strings"
)

// MaxNameLength is the maximum length providers accept for function names.
const MaxNameLength = 64

// FallbackName is used when nothing salvageable remains of the raw name.
const FallbackName = "tool"

var (
	validName  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	invalidRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// Sanitize returns a provider-safe tool name derived from raw, and whether
// the result differs from the trimmed input. It is total: any input,
// including the empty string, yields a name matching the provider pattern.
func Sanitize(raw string) (string, bool) {
	original := strings.TrimSpace(raw)
	if original == "" {
		return FallbackName, true
	}

	name := invalidRun.ReplaceAllString(original, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = FallbackName
	}
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}

	// Some providers reject names starting with a dash.
	if strings.HasPrefix(name, "-") {
		name = FallbackName + name
		if len(name) > MaxNameLength {
			name = name[:MaxNameLength]
		}
	}

	if !validName.MatchString(name) {
		return FallbackName, true
	}
	return name, name != original
}

// IsValid reports whether name already satisfies the provider pattern.
func IsValid(name string) bool {
	return validName.MatchString(name)
}
