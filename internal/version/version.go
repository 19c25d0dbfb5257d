// Package version holds build identification set via -ldflags at release
// time. Development builds report "dev".
package version

var (
	// Version is the release version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
