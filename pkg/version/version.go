// Package version derives the build version reported by the startup log
// and the health endpoint. An -ldflags override wins, then VCS metadata
// from the build info, then "dev".
package version

import "runtime/debug"

// AppName prefixes version strings in logs and user-agent headers.
const AppName = "postop"

// gitCommitOverride is set via -ldflags for container builds where the
// .git directory is not part of the build context.
var gitCommitOverride string

// GitCommit is the short commit hash, or "dev" when no VCS metadata is
// available (go test, non-git builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		return shortRev(gitCommitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shortRev(s.Value)
		}
	}
	return "dev"
}

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "postop/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
