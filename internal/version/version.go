// Package version carries build metadata set with -ldflags, e.g.
//
//	-X github.com/banshee-data/sonus/internal/version.Version=v0.3.0
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for logs and -version.
func String() string {
	return fmt.Sprintf("sonus %s (%s, built %s)", Version, GitSHA, BuildTime)
}
