// Package version exposes build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Build information. These variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/candelahq/trellis/version.Version=v0.3.0 \
//	  -X github.com/candelahq/trellis/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/candelahq/trellis/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version (if tagged)
	Version = "dev"

	// Commit is the git commit hash when the binary was built
	Commit = "unknown"

	// Date is when the binary was built
	Date = "unknown"
)

// Info contains version and build information
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	return fmt.Sprintf("trellis %s (commit %s, built %s)", i.Version, i.Commit, i.Date)
}
