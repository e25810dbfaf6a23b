// SPDX-License-Identifier: MIT
//
// Package build holds the build information embedded into the binary at
// link time:
//
//	go build -ldflags "-X fractalwave/pkg/build.buildVersion=0.3.0 \
//	    -X fractalwave/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X fractalwave/pkg/build.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Development builds run with the defaults below; Initialize reports which
// flag was not set so the caller can decide whether that matters.
package build

import (
	"fmt"
	"runtime"
)

const Description = "Audio player publishing a live spectral fingerprint to an external renderer"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Set with -ldflags -X.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "fractalwave",
		Description: Description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the ldflags variables into the build information. Every
// flag that is set is applied; the first missing one is reported.
func Initialize() error {
	var missing string
	apply := func(dst *string, v, flag string) {
		if v == "" {
			if missing == "" {
				missing = flag
			}
			return
		}
		*dst = v
	}

	apply(&buildFlags.Name, buildName, "buildName")
	apply(&buildFlags.Time, buildTime, "buildTime")
	apply(&buildFlags.Commit, buildCommit, "buildCommit")
	apply(&buildFlags.Version, buildVersion, "buildVersion")

	if missing != "" {
		return fmt.Errorf("build flag %s is not set", missing)
	}
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String is the one-line summary printed by the version command.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s/%s)",
		f.Name, f.Version, f.Commit, f.Time, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
