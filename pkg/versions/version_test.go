package versions

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) { //nolint:paralleltest // Modifies package globals
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	tests := []struct {
		name          string
		version       string
		commit        string
		buildDate     string
		wantVersion   string
		wantBuildDate string
	}{
		{
			name:          "dev build without commit",
			version:       "dev",
			commit:        unknownStr,
			buildDate:     unknownStr,
			wantVersion:   "build-unknown",
			wantBuildDate: unknownStr,
		},
		{
			name:          "dev build shortens the commit",
			version:       "dev",
			commit:        "9f8e7d6c5b4a39281706",
			buildDate:     unknownStr,
			wantVersion:   "build-9f8e7d6c",
			wantBuildDate: unknownStr,
		},
		{
			name:          "dev build with a short commit",
			version:       "dev",
			commit:        "9f8e",
			buildDate:     unknownStr,
			wantVersion:   "build-9f8e",
			wantBuildDate: unknownStr,
		},
		{
			name:          "tagged release formats the build date",
			version:       "v0.3.1",
			commit:        "9f8e7d6c5b4a39281706",
			buildDate:     "2026-08-26T09:15:00Z",
			wantVersion:   "v0.3.1",
			wantBuildDate: "2026-08-26 09:15:00 UTC",
		},
		{
			name:          "unparseable build date passes through",
			version:       "v0.3.1",
			commit:        "9f8e",
			buildDate:     "yesterday",
			wantVersion:   "v0.3.1",
			wantBuildDate: "yesterday",
		},
	}

	for _, tt := range tests { //nolint:paralleltest // Test modifies package globals
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, BuildDate = tt.version, tt.commit, tt.buildDate

			got := GetVersionInfo()

			assert.Equal(t, tt.wantVersion, got.Version)
			assert.Equal(t, tt.commit, got.Commit)
			assert.Equal(t, tt.wantBuildDate, got.BuildDate)
			assert.Equal(t, runtime.Version(), got.GoVersion)
			assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), got.Platform)
		})
	}
}
