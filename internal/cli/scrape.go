package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var scrapeMarkdown bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape URL",
	Short: "Extract a product page without scanning or storing it",
	Long: `Fetch a product page and print what the extractor derives from it (title,
description, feature list, image URLs) as JSON. Nothing is downloaded beyond
the page itself and nothing is stored.

With --markdown the page is printed as Markdown instead, which helps when
writing new rules against an unfamiliar storefront.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()

		x := newExtractor(cfg)
		if scrapeMarkdown {
			md, err := x.Markdown(ctx, args[0])
			if err != nil {
				return fatal(err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), md)
			return err
		}

		page, err := x.Extract(ctx, args[0])
		if err != nil {
			return fatal(err)
		}
		return writeJSON(cmd.OutOrStdout(), page)
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().BoolVar(&scrapeMarkdown, "markdown", false, "Print the page as Markdown")
}
