// Package slug derives URL-safe identifiers from display names.
package slug

import (
	"fmt"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Make lower-cases s and collapses every run of non letter/digit runes into
// a single dash. "Half-Elf (Variant)" becomes "half-elf-variant".
func Make(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Unique returns base, or base-2, base-3, ... for the first candidate that
// taken reports as free.
func Unique(base string, taken func(candidate string) (bool, error)) (string, error) {
	if base == "" {
		return "", fmt.Errorf("empty slug")
	}
	candidate := base
	for n := 2; ; n++ {
		exists, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
