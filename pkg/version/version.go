// Package version exposes the build identity reported by /health and the
// startup log line.
//
// An -ldflags override wins over VCS info from debug.BuildInfo; "dev" is the
// fallback.
package version

import "runtime/debug"

// AppName is the application name used in version strings.
const AppName = "medcopilot"

// gitCommitOverride is set via -ldflags at build time for container builds
// where .git is unavailable.
var gitCommitOverride string

// GitCommit is the short (8 char) commit hash, or "dev".
var GitCommit = resolveCommit(gitCommitOverride, readBuildInfo)

func readBuildInfo() (*debug.BuildInfo, bool) { return debug.ReadBuildInfo() }

func shortHash(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func resolveCommit(override string, info func() (*debug.BuildInfo, bool)) string {
	if override != "" {
		return shortHash(override)
	}
	bi, ok := info()
	if !ok {
		return "dev"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shortHash(s.Value)
		}
	}
	return "dev"
}

// Full returns "medcopilot/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
