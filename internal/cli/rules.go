package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"complyscan/internal/rules"
)

var rulesListQuiet bool
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List and inspect compliance rules",
	Long: `Inspect the compliance rules loaded from --rules.

Rules are evaluated during scans (see "complyscan scan --help").

Examples:
  # List all loaded rules
  complyscan rules list

  # Use another rule file
  complyscan rules list --rules rules/apparel.yaml
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded rules",
	Long: `List the rules loaded from --rules in definition order.

Output:
  A vertical list of rules:
    ----------------------------------------
    RULE: {ID} [critical]
    ----------------------------------------
    {NAME}
    {DESCRIPTION}
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return fatal(err)
		}
		for _, r := range reg.Rules() {
			if rulesListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), r.ID)
			} else {
				printRule(cmd.OutOrStdout(), r)
			}
		}
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show [rule-id]",
	Short: "Show details of a specific rule",
	Long: `Show details of a specific rule by its ID.

Examples:
  complyscan rules show LM001
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return fatal(err)
		}
		r, ok := reg.Lookup(args[0])
		if !ok {
			return fatal(fmt.Errorf("rule not found: %s", args[0]))
		}
		printRule(cmd.OutOrStdout(), r)
		return nil
	},
}

func printRule(w io.Writer, r rules.Rule) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	if r.Critical {
		bold.Fprintf(w, "RULE: %s ", r.ID)
		color.New(color.FgRed, color.Bold).Fprintln(w, "[critical]")
	} else {
		bold.Fprintf(w, "RULE: %s\n", r.ID)
	}
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, r.Name)
	if r.Description != "" {
		fmt.Fprintln(w, r.Description)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Type:     %s\n", r.Type)
	switch r.Type {
	case rules.TypePattern:
		fmt.Fprintf(w, "  Pattern:  %s\n", r.Pattern)
	case rules.TypeKeywordSet:
		fmt.Fprintf(w, "  Keywords: %s\n", strings.Join(r.Keywords, ", "))
	default:
		fmt.Fprintln(w, "  (unknown validation type; always fails)")
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesListCmd.Flags().BoolVarP(&rulesListQuiet, "quiet", "q", false, "Only print rule IDs")
	rulesCmd.AddCommand(rulesShowCmd)
}
