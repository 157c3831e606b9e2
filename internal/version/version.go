// Package version holds build-time version information for the depwatch
// binary, injected via ldflags.
package version

// Set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
