// Package version carries the build metadata of the feedbackhub binaries.
// The variables are overridden at link time:
//
//	go build -ldflags "-X feedbackhub/internal/version.Version=v1.2.0 -X feedbackhub/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

// Name identifies the product in logs, the route listing and CLI output.
const Name = "feedbackhub"

var (
	Version   = "dev"
	Commit    = "dev"
	BuildTime = "unknown"
)

// Info is the build metadata as reported by GET /api.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get snapshots the current build metadata.
func Get() Info {
	return Info{Name: Name, Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String renders "feedbackhub v1.2.0 (abc1234, built 2026-01-02T15:04:05Z)".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, built %s)", i.Name, i.Version, i.Commit, i.BuildTime)
}

// LogFields is the startup log payload.
func (i Info) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"app":        i.Name,
		"version":    i.Version,
		"commit":     i.Commit,
		"build_time": i.BuildTime,
	}
}
