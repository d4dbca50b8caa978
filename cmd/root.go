// Package cmd wires the visiondash command line interface.
package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/visiondash/cmd/detect"
	"github.com/tphakala/visiondash/cmd/serve"
	"github.com/tphakala/visiondash/cmd/validate"
	"github.com/tphakala/visiondash/cmd/version"
	"github.com/tphakala/visiondash/internal/buildinfo"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/telemetry"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "visiondash",
		Short: "visiondash object detection dashboard",
		Long: "visiondash runs images through Azure Custom Vision and Google AutoML object detection,\n" +
			"normalizes the results and serves them on a web dashboard.",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/visiondash, /etc/visiondash)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	// Add sub-commands to the root command.
	serveCmd := serve.Command(settings)
	detectCmd := detect.Command(settings)
	validateCmd := validate.Command(&configFile)
	versionCmd := version.Command(info)

	rootCmd.AddCommand(serveCmd, detectCmd, validateCmd, versionCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// validate reports load errors itself and version needs no config
		if cmd.Name() == validateCmd.Name() || cmd.Name() == versionCmd.Name() {
			logging.SetOutput(os.Stderr, os.Stderr)
			logging.SetLevel(slog.LevelWarn)
			return nil
		}
		return initialize(settings, configFile, debug, info, cmd.Name() == serveCmd.Name())
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Flush(sentryFlushTimeout)
	}

	return rootCmd
}

// initialize loads settings and sets up logging and error telemetry before a
// subcommand runs.
func initialize(settings *conf.Settings, configFile string, debug bool, info *buildinfo.Context, server bool) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded
	settings.Version = info.Version()
	settings.BuildDate = info.BuildDate()
	if debug {
		settings.Debug = true
	}

	level := logging.ParseLevel(settings.Main.Log.Level)
	switch {
	case settings.Debug:
		level = slog.LevelDebug
	case !server:
		// one-shot commands only report problems
		level = max(level, slog.LevelWarn)
	}

	logging.Init(level)
	if !server {
		// stdout carries command output
		logging.SetOutput(os.Stderr, os.Stderr)
	}

	if _, err := telemetry.InitSentry(settings, info); err != nil {
		logging.Warn("Error telemetry disabled", "error", err)
	}

	if settings.ConfigFile != "" {
		logging.Debug("Configuration loaded", "file", settings.ConfigFile)
	}
	return nil
}
