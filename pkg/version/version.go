// Package version holds the build version, overridable with
// -ldflags "-X carnav/pkg/version.Version=v1.2.3".
package version

// Version is the release tag.
var Version = "v0.1.0"

// Commit is the VCS revision, empty for local builds.
var Commit = ""

// String returns the version with the commit appended when known.
func String() string {
	if Commit == "" {
		return Version
	}
	c := Commit
	if len(c) > 7 {
		c = c[:7]
	}
	return Version + "+" + c
}
