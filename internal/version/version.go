// Package version holds the build-time version variables of the ruleset
// binaries. The zero values ("dev", "none", "unknown") mark local builds;
// release builds set them via -ldflags "-X".
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns the formatted version string printed by ruleset version.
func Info() string {
	return fmt.Sprintf(
		"ruleset version %s\ncommit: %s\nbuilt: %s\n",
		Version,
		Commit,
		Date,
	)
}

// UserAgent is the SDK app ID sent with every AWS API call, so
// audit traffic is identifiable in CloudTrail.
func UserAgent() string {
	return "config-rulesets/" + Version
}
