package config

import "fmt"

// ModuleName is the name of this module, used by the root command and logging.
const ModuleName = "go-migrate"

// The following variables are injected at build time via -ldflags.
var (
	Commit    = "local"
	BuildDate = "unknown"
)

// GetFormattedBuildArgs returns "<module> @ <commit> (<build date>)".
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
