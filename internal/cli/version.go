package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Needs no configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		version, commit, date := BuildInfo()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "complyscan %s\n", version)
		fmt.Fprintf(out, "commit: %s\nbuilt:  %s\n", commit, date)
		fmt.Fprintf(out, "go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
