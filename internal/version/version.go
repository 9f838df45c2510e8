// Package version holds build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	CLIName    = "defi-intents"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

// UserAgent identifies outbound provider requests.
func UserAgent() string {
	return CLIName + "/" + CLIVersion
}

func Long() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", CLIName, CLIVersion, Commit, BuildDate)
}
