// Package version reports the build version of machinewatch.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/machinewatch/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/machinewatch/internal/version.Commit=abc1234"
//
// Unset values are filled from the module build info, then fall back to
// "dev" and "unknown".
var (
	Version = ""
	Commit  = ""
)

func init() {
	fill(debug.ReadBuildInfo)
}

func fill(read func() (*debug.BuildInfo, bool)) {
	if Version == "" || Commit == "" {
		if info, ok := read(); ok {
			fromBuildInfo(info)
		}
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func fromBuildInfo(info *debug.BuildInfo) {
	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit != "" {
		return
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		revision += "-dirty"
	}
	Commit = revision
}

// Full returns the version with commit and platform
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s/%s, %s)",
		Version, Commit, runtime.GOOS, runtime.GOARCH, strings.TrimPrefix(runtime.Version(), "go"))
}
