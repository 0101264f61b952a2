package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"complyscan/internal/output"
	"complyscan/internal/store"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a Markdown compliance report from stored products",
	Long: `Render a Markdown compliance report covering every stored product: summary
counts, the products needing attention, the most violated rules and any
evidence gaps.

Examples:
  complyscan report
  complyscan report --output compliance.md
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			recs, err := st.List(ctx, store.ListOptions{})
			if err != nil {
				return err
			}
			md := output.RenderReport(recs)
			if reportOutput == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}
			if err := os.WriteFile(reportOutput, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s (%d products)\n", reportOutput, len(recs))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report to this file instead of stdout")
}
