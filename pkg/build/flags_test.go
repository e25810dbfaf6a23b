// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"runtime"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	if buildFlags != nil {
		origFlags = *buildFlags
	}

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	if buildFlags != nil {
		*buildFlags = origFlags
	}

	os.Exit(exitCode)
}

func defaults() *ldFlags {
	return &ldFlags{
		Name:        "fractalwave",
		Description: Description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
		want        ldFlags
	}{
		{
			"Development build",
			"", "", "", "",
			"build flag buildName is not set",
			*defaults(),
		},
		{
			"Missing BuildTime",
			"fw", "", "abcdef123", "v1.0.0",
			"build flag buildTime is not set",
			ldFlags{Name: "fw", Description: Description, Time: "unknown", Commit: "abcdef123", Version: "v1.0.0"},
		},
		{
			"Missing BuildVersion",
			"fw", "2025-04-13", "abcdef123", "",
			"build flag buildVersion is not set",
			ldFlags{Name: "fw", Description: Description, Time: "2025-04-13", Commit: "abcdef123", Version: "dev"},
		},
		{
			"Success Case",
			"fw", "2025-04-13", "abcdef123", "v1.0.0",
			"",
			ldFlags{Name: "fw", Description: Description, Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaults()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("Initialize() expected error, got nil")
				}
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
			} else if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			if *buildFlags != tt.want {
				t.Errorf("buildFlags = %+v, want %+v", *buildFlags, tt.want)
			}
		})
	}
}

func TestGetBuildFlagsString(t *testing.T) {
	expected := ldFlags{
		Name:    "fw",
		Time:    "2025-04-13",
		Commit:  "abcdef123",
		Version: "v1.0.0",
	}
	buildFlags = &expected

	flags := GetBuildFlags()
	if *flags != expected {
		t.Errorf("GetBuildFlags() = %+v, want %+v", flags, expected)
	}

	s := flags.String()
	for _, want := range []string{"fw v1.0.0", "commit abcdef123", "built 2025-04-13", runtime.GOOS} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
