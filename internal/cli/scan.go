package cli

import (
	"context"

	"github.com/spf13/cobra"

	"complyscan/internal/config"
	"complyscan/internal/flags"
)

const scanHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	Every global flag can also be set as COMPLYSCAN_<NAME>, for example
	COMPLYSCAN_STORE_DRIVER=postgres or COMPLYSCAN_OCR_COMMAND="tesseract {path} stdout".
	A .env file in the working directory is read first.

	Text recognition runs an external command per image (tesseract by
	default). When it is missing, images are kept but contribute no text.

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

const outputHelp = `Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown compliance report
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, scan.started, stage.changed, rule.result,
	scan.finished, run.finished). Rule results are represented as an Event with
	type "rule.result" and the rule outcome fields inlined.

Exit codes:
	0 = every product compliant
	1 = non-compliant or needs-review products found
	2 = partial failure (some submissions aborted or a record was not stored)
	3 = fatal error (nothing was scanned)
`

var scanCmd = &cobra.Command{
	Use:   "scan URL...",
	Short: "Scan product pages for compliance",
	Long: `Scan one or more product pages and evaluate them against the compliance rules.

Each URL is fetched, up to --max-images product images are downloaded and
passed through text recognition, and the combined evidence is evaluated.
Only an invalid URL or a failed page fetch aborts a submission; image and
recognition failures only reduce the evidence. Completed scans are stored.

` + outputHelp + `
Examples:
  complyscan scan https://shop.example/p/123

  # Scan without text recognition into a throwaway store
  complyscan scan --no-ocr --store memory https://shop.example/p/123

  # AI Agent: stream machine-readable events to stdout
  complyscan scan --no-console --emit ndjson https://shop.example/p/123
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runPipeline(cmd.Context(), func(ctx context.Context, s *services) int {
			return s.engine.Run(ctx, cfg, args)
		})
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate PRODUCT_ID...",
	Short: "Re-evaluate stored products against the current rules",
	Long: `Re-evaluate stored products against the current rule definitions without
fetching anything. The stored evidence is reused and the new result replaces
the previous one.

` + outputHelp,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), func(ctx context.Context, s *services) int {
			return s.engine.RunEvaluate(ctx, cfg, args)
		})
	},
}

// runPipeline wires the services under the command timeout and converts a
// non-zero run result into an exit code.
func runPipeline(parent context.Context, run func(context.Context, *services) int) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.Runtime.Timeout)
	defer cancel()

	s, err := newServices(ctx, cfg)
	if err != nil {
		return fatal(err)
	}
	defer s.Close()

	if code := run(ctx, s); code != 0 {
		return withExitCode(code, nil)
	}
	return nil
}

func addOutputFlags(cmd *cobra.Command, c *config.Config) {
	cmd.Flags().StringVar(&c.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson (default: text)")
	cmd.Flags().StringSliceVar(&c.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console rule output by status (PASS, FAIL). Comma-separated.")
	cmd.Flags().StringVar(&c.Output.Report, flags.FlagReport, "", "Write a Markdown report to this path")
	cmd.Flags().StringVar(&c.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	cmd.Flags().StringVar(&c.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	cmd.Flags().StringSliceVar(&c.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	cmd.Flags().BoolVar(&c.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(evaluateCmd)
	scanCmd.SetHelpTemplate(scanHelpTemplate)
	evaluateCmd.SetHelpTemplate(scanHelpTemplate)

	addOutputFlags(scanCmd, cfg)
	addOutputFlags(evaluateCmd, cfg)
	scanCmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "URLs scanned at once")
}
