package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tphakala/visiondash/internal/buildinfo"
)

// Command creates a new cobra.Command to print build information.
func Command(info buildinfo.BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Long:  "Prints the build version, build date and platform.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "visiondash %s (built %s, %s %s/%s)\n",
				info.Version(), info.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}

	return cmd
}
