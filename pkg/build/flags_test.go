// SPDX-License-Identifier: MIT
package build

import (
	"os"
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

func resetFlags() {
	buildFlags = &ldFlags{
		Name:        "whisperer",
		Description: description,
		Time:        "dev",
		Commit:      "dev",
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
	}{
		{"Missing BuildName", "", "2026-10-01", "abcdef123", "v0.3.0", "BuildName is required"},
		{"Missing BuildTime", "whisperer", "", "abcdef123", "v0.3.0", "BuildTime is required"},
		{"Missing BuildCommit", "whisperer", "2026-10-01", "", "v0.3.0", "BuildCommit is required"},
		{"Missing BuildVersion", "whisperer", "2026-10-01", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "whisperer", "2026-10-01", "abcdef123", "v0.3.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()

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
				if buildFlags.Version != "dev" {
					t.Errorf("defaults should survive a failed Initialize, got version %q", buildFlags.Version)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Name != tt.buildName {
				t.Errorf("buildFlags.Name = %v, want %v", buildFlags.Name, tt.buildName)
			}
			if buildFlags.Version != tt.buildVer {
				t.Errorf("buildFlags.Version = %v, want %v", buildFlags.Version, tt.buildVer)
			}
			if buildFlags.Description == "" {
				t.Error("description should always be set")
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	resetFlags()
	buildFlags.Version = "v0.3.0"

	if got, want := UserAgent(), "whisperer/v0.3.0"; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}
