// Package version exposes build-time version information.
package version

import "fmt"

// Set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/cropsight/cropsight/internal/version.Version=0.3.0 -X github.com/cropsight/cropsight/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Info returns a human-readable version line.
func Info() string {
	return fmt.Sprintf("cropsight %s (commit %s, built %s)", Version, Commit, Date)
}

// Map returns version fields for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
