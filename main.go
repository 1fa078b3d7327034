// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"

	"whisperer/cmd"
	"whisperer/internal/audio"
	applog "whisperer/internal/log"
	"whisperer/pkg/build"
)

// main is the entry point of the diagnostics client.
//
// Startup:
//   - Initialize build information
//   - Initialize PortAudio
//
// Commands then run to completion; the interactive mode owns the terminal
// until the user quits. PortAudio is terminated on the way out.
func main() {
	// Development builds run without ldflags and keep the defaults.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build: %v", err)
	}

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}

	err := cmd.Execute()

	if terr := audio.Terminate(); terr != nil {
		applog.Warnf("%v", terr)
	}
	_ = applog.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
