// Package version carries build metadata injected via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set during build time via ldflags, e.g.
// -X github.com/goclaw/reactor/pkg/version.Version=v1.2.0
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo is the build metadata of the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: GoVersion,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the one-line form printed by -version.
func (b BuildInfo) String() string {
	commit := b.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("reactor %s (commit %s, built %s, %s %s)",
		b.Version, commit, b.BuildTime, b.GoVersion, b.Platform)
}

// Info returns the build metadata as a flat map.
func Info() map[string]string {
	b := Get()
	return map[string]string{
		"version":   b.Version,
		"buildTime": b.BuildTime,
		"gitCommit": b.GitCommit,
		"goVersion": b.GoVersion,
		"platform":  b.Platform,
	}
}
