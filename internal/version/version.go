// Package version exposes the floe release version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the release version with surrounding whitespace trimmed.
func Get() string {
	return strings.TrimSpace(raw)
}
