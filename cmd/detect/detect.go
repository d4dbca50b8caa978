package detect

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tphakala/visiondash/internal/aggregator"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detector"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/imaging"
)

const componentName = "cli-detect"

// Options are the flags of the detect command.
type Options struct {
	Services  []string
	Threshold float64
	Format    string
	Annotate  string
	Lang      string
}

// Command creates the command that runs one detection from the terminal.
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Detect objects in an image",
		Long: "Send an image to the configured detection services and print the merged detections.\n" +
			"Service failures are reported on stderr and do not hide results from the other service.",
		Args: cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				opts.Threshold = settings.Detection.Threshold
			}
			return Run(cmd.Context(), settings, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	// Set up flags specific to the 'detect' command
	cmd.Flags().StringSliceVarP(&opts.Services, "services", "s", nil, "Services to call: Azure, Google (default: all configured)")
	cmd.Flags().Float64VarP(&opts.Threshold, "threshold", "t", 0, "Confidence threshold between 0 and 1 (default: detection.threshold)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatTable, "Output format: table, csv, json")
	cmd.Flags().StringVarP(&opts.Annotate, "annotate", "a", "", "Write the image with detection boxes to this PNG file")
	cmd.Flags().StringVar(&opts.Lang, "lang", "", "Language for number formatting in table output (default: $LANG)")

	return cmd
}

// Run executes one detection run and writes the report to out.
func Run(ctx context.Context, settings *conf.Settings, imagePath string, opts Options, out, errOut io.Writer) error {
	if !slices.Contains(Formats(), opts.Format) {
		return errors.Newf("unsupported output format %q", opts.Format).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("supported", Formats()).
			Build()
	}
	if math.IsNaN(opts.Threshold) || opts.Threshold < 0 || opts.Threshold > 1 {
		return errors.Newf("threshold must be between 0 and 1, got %g", opts.Threshold).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", imagePath).
			Build()
	}
	info, err := imaging.Validate(data)
	if err != nil {
		return err
	}

	registry := detector.NewRegistry(settings)
	defer registry.Close()
	runner := aggregator.New(registry, aggregator.WithCallTimeout(settings.Detection.Timeout))

	report, err := runner.Run(ctx, data, opts.Services, opts.Threshold)
	if err != nil {
		return err
	}

	if err := WriteReport(out, report, opts.Format, opts.Lang); err != nil {
		return err
	}
	for _, failed := range report.Failed() {
		fmt.Fprintf(errOut, "%s failed (%s): %s\n", failed.Service, failed.Kind, failed.Message)
	}

	if opts.Annotate != "" {
		if err := writeAnnotated(opts.Annotate, data, report, info); err != nil {
			return err
		}
	}

	if len(report.Results()) == 0 {
		return errors.Newf("all %d detection services failed", len(report.Outcomes)).
			Component(componentName).
			Category(errors.CategoryVendorUnavailable).
			Build()
	}
	return nil
}

// writeAnnotated renders the detections onto the image at its original size.
func writeAnnotated(path string, data []byte, report *aggregator.Report, info imaging.Info) error {
	rendered, err := imaging.Render(data, report.Detections, info.Width, info.Height)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}
