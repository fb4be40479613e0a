// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/garyellow/moodle-linebot-go/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/moodle-linebot-go/internal/buildinfo.Commit=...
var Commit = ""

// Release returns the identifier reported to error tracking.
// Falls back to the commit when no version tag was injected.
func Release() string {
	if Version != "" {
		return Version
	}
	if Commit != "" {
		return Commit
	}
	return "dev"
}
