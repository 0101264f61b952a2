package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"complyscan/internal/domain"
	"complyscan/internal/store"
)

var (
	productsLimit int
	productsJSON  bool
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Inspect stored scan records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored products, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			recs, err := st.List(ctx, store.ListOptions{Limit: productsLimit})
			if err != nil {
				return err
			}
			if productsJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			return printProducts(cmd.OutOrStdout(), recs)
		})
	},
}

var productsShowCmd = &cobra.Command{
	Use:   "show PRODUCT_ID",
	Short: "Print one stored record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			rec, err := st.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("product %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		})
	},
}

// withStore opens the configured store for a read-only command.
func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fatal(err)
	}
	defer st.Close()

	if err := fn(ctx, st); err != nil {
		return fatal(err)
	}
	return nil
}

func printProducts(w io.Writer, recs []*domain.ScanRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No products stored.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tSCORE\tSTATUS\tSCANNED\tTITLE")
	for _, rec := range recs {
		score, status := "-", "Not evaluated"
		if rec.Evaluated() {
			score = fmt.Sprintf("%d", rec.Compliance.Score)
			status = string(rec.Compliance.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ProductID, score, status,
			rec.ScannedAt.Format("2006-01-02 15:04"), rec.Title)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(productsCmd)
	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsShowCmd)
	productsListCmd.Flags().IntVar(&productsLimit, "limit", 0, "Maximum number of products (0 = all)")
	productsListCmd.Flags().BoolVar(&productsJSON, "json", false, "Print records as JSON")
}
