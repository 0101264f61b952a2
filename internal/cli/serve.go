package cli

import (
	"context"

	"github.com/spf13/cobra"

	"complyscan/internal/api"
	"complyscan/internal/flags"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scan pipeline as a JSON HTTP API",
	Long: `Serve the scan pipeline over HTTP until interrupted.

Routes:
  GET  /api/health
  POST /api/products/scan          {"url": "..."}
  GET  /api/products               ?limit=N
  GET  /api/products/{id}
  POST /api/compliance/scan/{id}   re-evaluate a stored product
  GET  /api/compliance/report
  POST /api/scrape/test            {"url": "...", "markdown": false}

--timeout does not apply; each request is bounded by the fetch, image and
recognition timeouts.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		s, err := newServices(ctx, cfg)
		if err != nil {
			return fatal(err)
		}
		defer s.Close()

		srv := api.New(s.engine, s.store, s.extractor)
		if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
			return fatal(err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&cfg.Server.Addr, flags.FlagAddr, cfg.Server.Addr, "Listen address")
}
