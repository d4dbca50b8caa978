package validate

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/visiondash/internal/buildinfo"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/detector"
	"github.com/tphakala/visiondash/internal/errors"
)

const defaultInitPath = "config.yaml"

// Report is the outcome of a configuration check.
type Report struct {
	Settings *conf.Settings // nil when loading failed
	Services []detector.ServiceStatus
	Result   *buildinfo.ValidationResult
}

// Command creates the command that checks the configuration and reports
// which detection services can be used.
func Command(configFile *string) *cobra.Command {
	var show, initConfig bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and service availability",
		Long: "Load the configuration the way serve does, report each detection service as\n" +
			"configured or missing, and exit non-zero when no service can be used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if initConfig {
				path := *configFile
				if path == "" {
					path = defaultInitPath
				}
				if err := conf.WriteDefaultConfig(path); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote default configuration to %s\n\n", path)
				*configFile = path
			}

			report := Check(*configFile)
			PrintReport(out, report)

			if show && report.Settings != nil {
				data, err := conf.RenderYAML(report.Settings)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "\nEffective settings:")
				if _, err := out.Write(data); err != nil {
					return err
				}
			}

			if !report.Result.Valid {
				return errors.Newf("configuration has %d error(s)", len(report.Result.Errors)).
					Component("cli-validate").
					Category(errors.CategoryConfiguration).
					Build()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the effective settings as YAML, secrets masked")
	cmd.Flags().BoolVar(&initConfig, "init", false, "Write the default config.yaml first (to --config or ./config.yaml)")

	return cmd
}

// Check loads the configuration and collects errors and warnings.
func Check(configFile string) Report {
	result := buildinfo.NewValidationResult()

	settings, err := conf.Load(configFile)
	if err != nil {
		var ve conf.ValidationError
		if errors.As(err, &ve) {
			for _, msg := range ve.Errors {
				result.AddError(msg)
			}
		} else {
			result.AddError(err.Error())
		}
		return Report{Result: result}
	}

	registry := detector.NewRegistry(settings)
	defer registry.Close()
	statuses := registry.Statuses()

	configured := 0
	for _, status := range statuses {
		if status.Configured {
			configured++
			continue
		}
		result.AddWarning(fmt.Sprintf("%s is not available: %s", status.Name, status.Reason))
	}
	if configured == 0 {
		result.AddError("no detection service is configured")
	}

	if path := settings.Google.CredentialsFile; path != "" {
		if _, err := os.Stat(path); err != nil {
			result.AddWarning(fmt.Sprintf("%s credentials file is not readable: %s", detection.SourceGoogle.DisplayName(), path))
		}
	}

	return Report{Settings: settings, Services: statuses, Result: result}
}

// PrintReport writes a human readable check summary.
func PrintReport(w io.Writer, report Report) {
	if report.Settings != nil {
		source := report.Settings.ConfigFile
		if source == "" {
			source = "defaults and environment"
		}
		fmt.Fprintf(w, "Configuration: %s\n\n", source)
	}

	if len(report.Services) > 0 {
		fmt.Fprintln(w, "Services:")
		for _, s := range report.Services {
			if s.Configured {
				fmt.Fprintf(w, "  [ok] %s\n", s.Name)
			} else {
				fmt.Fprintf(w, "  [--] %s: %s\n", s.Name, s.Reason)
			}
		}
		fmt.Fprintln(w)
	}

	for _, msg := range report.Result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
	for _, msg := range report.Result.Errors {
		fmt.Fprintf(w, "error: %s\n", msg)
	}

	if report.Result.Valid {
		fmt.Fprintln(w, "Configuration is valid.")
	} else {
		fmt.Fprintln(w, "Configuration is invalid.")
	}
}
