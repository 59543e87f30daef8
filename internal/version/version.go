// Package version holds build metadata set with -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Full returns the version line printed by --version.
func Full() string {
	return fmt.Sprintf("still-capture %s, commit %s, built at %s", Version, Commit, Date)
}
