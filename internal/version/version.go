// Package version carries build metadata injected through -ldflags.
package version

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// Commit is the short git revision the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)

// String renders the metadata in one line for logs and the version
// command.
func String() string {
	return fmt.Sprintf("curvewatcher %s (commit %s, built %s)", Version, Commit, BuildDate)
}
