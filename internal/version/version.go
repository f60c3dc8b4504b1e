// Package version carries build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/sprintbot/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/sprintbot/internal/version.Commit=abc123
//	  -X github.com/soyeahso/sprintbot/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the structured form of the build metadata, as reported by the
// gateway status RPC.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	Target  string `json:"target"`
}

// Current returns the running binary's build metadata.
func Current() Build {
	return Build{
		Version: Version,
		Commit:  short(Commit),
		Date:    Date,
		Go:      runtime.Version(),
		Target:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns a formatted version string.
func Info() string {
	b := Current()
	return fmt.Sprintf("sprintbot %s (commit: %s, built: %s, %s)", b.Version, b.Commit, b.Date, b.Target)
}

// UserAgent identifies sprintbot on IRC and in gateway handshakes.
func UserAgent() string {
	return "sprintbot/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
