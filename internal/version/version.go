// Package version carries the release stamp of unsafegraph. Reports and
// findings artifacts record it so a later graph-only run can tell which
// build produced them.
package version

import "strings"

// unset marks a field the release build did not stamp.
const unset = "unknown"

// Release builds stamp these through the linker, e.g.
//
//	-ldflags "-X unsafegraph/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.3.0"
	Commit    = unset
	BuildDate = unset
)

// shortCommitLen is how much of the commit hash Info shows.
const shortCommitLen = 7

// Info is the one-line form used by --version: the release, plus the short
// commit when a full hash was stamped.
func Info() string {
	if Commit == unset || len(Commit) <= shortCommitLen {
		return Version
	}
	return Version + " (" + Commit[:shortCommitLen] + ")"
}

// Full is the multi-line form printed by the version command.
func Full() string {
	return strings.Join([]string{
		"unsafegraph version " + Version,
		"Commit: " + Commit,
		"Built: " + BuildDate,
	}, "\n")
}
