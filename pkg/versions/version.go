// Package versions provides version information for the keyhive binaries.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Version information set by build using -ldflags.
var (
	// Version is the current version of keyhive
	Version = "dev"
	// Commit is the git commit hash the binary was built from
	Commit = unknownStr
	// BuildDate is the date the binary was built
	BuildDate = unknownStr
)

// VersionInfo represents the version information of the binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information for the running binary.
func GetVersionInfo() VersionInfo {
	version := Version

	// For development builds, derive a pseudo version from the commit so
	// two local builds are distinguishable.
	if version == "dev" {
		commitPart := Commit
		if len(commitPart) > 8 {
			commitPart = commitPart[:8]
		}
		version = fmt.Sprintf("build-%s", commitPart)
	}

	buildDate := BuildDate
	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.Format("2006-01-02 15:04:05 UTC")
	}

	return VersionInfo{
		Version:   version,
		Commit:    Commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
