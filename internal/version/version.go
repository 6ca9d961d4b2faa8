// Package version carries the build identity. The Version string is
// committed into the index metadata as software_version and reported by
// the stats tool, so bumping it is visible to every client.
package version

import "fmt"

// Version is the semantic version of this build.
const Version = "0.3.0"

// Stamped by the release build via -ldflags -X; the zero values mark a
// development build.
var (
	commit    = ""
	buildDate = ""
)

// FullInfo renders the version with its build provenance, for the CLI's
// version flag and version command.
func FullInfo() string {
	c, d := commit, buildDate
	if c == "" {
		c = "dev"
	}
	if d == "" {
		d = "unreleased"
	}
	return fmt.Sprintf("mcplucene %s (%s, %s)", Version, c, d)
}
