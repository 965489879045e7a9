// Package version exposes build metadata set via -ldflags.
package version

var (
	// Version is the semantic version or git describe output.
	Version = "dev"
	// Commit is the short git commit hash.
	Commit = "unknown"
	// BuildTime is the RFC3339 build timestamp.
	BuildTime = "unknown"
)

// Info bundles the build metadata for the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build info.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}
