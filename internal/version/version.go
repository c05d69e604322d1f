// Package version provides application version and build info.
//
//nolint:revive
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is the release version, overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is the git commit, overridden by ldflags or read from build info.
	CommitHash = ""
	// BuildTime is the build timestamp, overridden by ldflags or read from build info.
	BuildTime = ""
)

// Info is the build metadata reported by the CLI and the HTTP API.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

var readOnce sync.Once

func fromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if CommitHash == "" {
				CommitHash = setting.Value
			}
		case "vcs.time":
			if BuildTime == "" {
				BuildTime = setting.Value
			}
		}
	}
}

// Get returns the build metadata, falling back to VCS stamps in the binary.
func Get() Info {
	readOnce.Do(fromBuildInfo)
	info := Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
	}
	return info
}

// String formats the version with a short commit hash, e.g. "v1.2.0 (abc1234)".
func (i Info) String() string {
	res := i.Version
	if i.Commit != "" {
		short := i.Commit
		if len(short) > 7 {
			short = short[:7]
		}
		res += fmt.Sprintf(" (%s)", short)
	}
	return res
}

// GetInfo returns the formatted version string.
func GetInfo() string {
	return Get().String()
}
