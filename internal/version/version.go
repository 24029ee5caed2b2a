// Package version holds build-time version metadata.
package version

// Version is set via ldflags in release builds:
// go build -ldflags "-X github.com/mdpress/mdpress/internal/version.Version=v1.2.0".
var Version = "dev"

// Build metadata, also set via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)
