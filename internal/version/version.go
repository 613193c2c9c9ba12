// Package version holds build metadata stamped in via -ldflags.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns the version with the short SHA appended when known.
func String() string {
	if GitSHA == "unknown" || GitSHA == "" {
		return Version
	}
	sha := GitSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return Version + " (" + sha + ")"
}
