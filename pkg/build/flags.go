// SPDX-License-Identifier: MIT
//
// Package build carries the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X whisperer/pkg/build.buildName=whisperer \
//	  -X whisperer/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds keep the "dev" defaults.
package build

import "fmt"

const description = "Record vehicle audio, visualise it live and request an AI diagnosis"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "whisperer",
		Description: description,
		Time:        "dev",
		Commit:      "dev",
		Version:     "dev",
	}
)

// Initialize validates and copies the ldflags variables into the build
// information. It returns an error naming the first missing flag; the
// defaults stay in place in that case.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// UserAgent is sent with every request to the analysis service.
func UserAgent() string {
	return buildFlags.Name + "/" + buildFlags.Version
}
