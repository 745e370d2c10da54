package main

import (
	"fmt"
	"os"

	"github.com/vesperrec/vesper-recorder/cmd"
	"github.com/vesperrec/vesper-recorder/internal/buildinfo"
)

// Injected with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	build := buildinfo.NewContext(version, buildDate)

	rootCmd := cmd.RootCommand(build)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
