// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded at link time, for example:
//
//	go build -ldflags "-X pulse/pkg/build.buildVersion=0.3.0 -X pulse/pkg/build.buildCommit=$(git rev-parse HEAD)"
//
// Development builds report "dev" values instead of failing.
package build

import "fmt"

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the info the way the CLI prints it for --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = &Info{
		Name:        "pulse",
		Description: "Audio-reactive capture, analysis, upload and playback engine",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the ldflags values into the build info. Missing values
// keep their development defaults; the returned error lists the first one
// missing so release pipelines can fail loudly while local builds only warn.
func Initialize() error {
	var missing string
	set := func(dst *string, val, name string) {
		if val == "" {
			if missing == "" {
				missing = name
			}
			return
		}
		*dst = val
	}

	set(&buildInfo.Name, buildName, "BuildName")
	set(&buildInfo.Time, buildTime, "BuildTime")
	set(&buildInfo.Commit, buildCommit, "BuildCommit")
	set(&buildInfo.Version, buildVersion, "BuildVersion")

	if missing != "" {
		return fmt.Errorf("%s is required", missing)
	}
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() *Info {
	return buildInfo
}
