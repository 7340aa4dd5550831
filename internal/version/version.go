// Package version carries build-time version information.
package version

// Set via -ldflags at build time.
var (
	// Version is the semantic version of the dewarping tools.
	Version = "0.1.0"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// GitCommit is the git commit hash the build came from.
	GitCommit = "unknown"
)
