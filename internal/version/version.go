// Package version holds the version of the lanaudio binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

const (
	Major = 0
	Minor = 1
	Patch = 0

	// PreRelease is set for builds that are not tagged releases.
	PreRelease = "pre"
)

// vcsRevision returns the abbreviated commit the binary was built from, if
// known.
func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

// String returns the full version string.
func String() string {
	s := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
	if PreRelease != "" {
		s += "-" + PreRelease
	}
	if rev := vcsRevision(); rev != "" {
		s += "+" + rev
	}
	return s
}
