package main

import (
	"fmt"
	"os"

	"github.com/tphakala/visiondash/cmd"
	"github.com/tphakala/visiondash/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	info := buildinfo.NewRuntimeContext(version, buildDate)

	rootCmd := cmd.RootCommand(info)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
