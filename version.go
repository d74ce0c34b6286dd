// Package ideaflow provides the version information for ideaflow.
package ideaflow

// Version is the current version of ideaflow.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
