package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"complyscan/internal/config"
	"complyscan/internal/flags"
	"complyscan/internal/logging"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var cfg = config.New()

var rootCmd = &cobra.Command{
	Use:   "complyscan",
	Short: "Scan e-commerce product pages for mandatory disclosure compliance",
	Long: `complyscan fetches product pages, downloads product images, recognizes text
in them and checks the combined evidence against declarative disclosure rules
(MRP, net quantity, country of origin, manufacturer details and so on).

Every scan is stored, so products can be re-evaluated after the rules change
and summarized in a compliance report.

Examples:
	# Scan a product page
	complyscan scan https://shop.example/p/123

	# Re-evaluate stored products against the current rules
	complyscan evaluate prod_6f1c...

	# Summarize everything stored so far
	complyscan report --output report.md

	# Serve the JSON API
	complyscan serve --addr :5000

Configuration:
	Flags win over COMPLYSCAN_* environment variables (a .env file is read
	first), which win over complyscan.toml.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

// exitError carries a process exit code out of a command. A nil err exits
// silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// fatal marks err as exit code 3: nothing was scanned.
func fatal(err error) error {
	return withExitCode(3, err)
}

// prepare layers file and environment configuration under the parsed flags,
// validates the result and installs the logger.
func prepare(cmd *cobra.Command, _ []string) error {
	if err := config.Load(cfg, cmd.Flags().Changed); err != nil {
		return fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		return fatal(err)
	}

	level, err := logging.ParseLevel(cfg.Runtime.LogLevel)
	if err != nil {
		return fatal(err)
	}
	if cfg.Runtime.Verbose {
		level = slog.LevelDebug
	}
	logging.Setup(logging.WithFormat(cfg.Runtime.LogFormat), logging.WithLevel(level))
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	// Global
	pf.StringVar(&cfg.Runtime.ConfigFile, flags.FlagConfig, "", "TOML config file (default: ./complyscan.toml when present)")
	pf.StringVar(&cfg.Runtime.EnvFile, flags.FlagEnvFile, cfg.Runtime.EnvFile, "dotenv file loaded before reading COMPLYSCAN_* variables")
	pf.BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every HTTP request and full error details)")
	pf.StringVar(&cfg.Runtime.LogFormat, flags.FlagLogFormat, cfg.Runtime.LogFormat, "Log format: text|json")
	pf.StringVar(&cfg.Runtime.LogLevel, flags.FlagLogLevel, cfg.Runtime.LogLevel, "Log level: debug|info|warn|error")
	pf.DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Overall command timeout")

	// Fetch
	pf.DurationVar(&cfg.Fetch.Timeout, flags.FlagFetchTimeout, cfg.Fetch.Timeout, "Product page fetch timeout")
	pf.StringVar(&cfg.Fetch.UserAgent, flags.FlagUserAgent, cfg.Fetch.UserAgent, "User-Agent sent with every request")
	pf.Int64Var(&cfg.Fetch.MaxBodyBytes, flags.FlagMaxBodyBytes, cfg.Fetch.MaxBodyBytes, "Maximum product page size in bytes")
	pf.Float64Var(&cfg.Fetch.RatePerHost, flags.FlagRatePerHost, cfg.Fetch.RatePerHost, "Requests per second allowed per host (0 = unlimited)")
	pf.IntVar(&cfg.Fetch.Burst, flags.FlagRateBurst, cfg.Fetch.Burst, "Requests allowed at once per host")

	// Media
	pf.StringVar(&cfg.Media.DataDir, flags.FlagDataDir, cfg.Media.DataDir, "Directory for downloaded images")
	pf.IntVar(&cfg.Media.MaxImages, flags.FlagMaxImages, cfg.Media.MaxImages, "Maximum images downloaded per product")
	pf.DurationVar(&cfg.Media.Timeout, flags.FlagImageTimeout, cfg.Media.Timeout, "Per-image download timeout")
	pf.Int64Var(&cfg.Media.MaxBytes, flags.FlagImageMaxBytes, cfg.Media.MaxBytes, "Maximum image size in bytes")
	pf.IntVar(&cfg.Media.Concurrency, flags.FlagImageConcurrency, cfg.Media.Concurrency, "Concurrent image downloads per product")

	// OCR
	pf.StringSliceVar(&cfg.OCR.Command, flags.FlagOCRCommand, cfg.OCR.Command, "Text recognition command; {path} is replaced by the image path (comma-separated argv)")
	pf.StringVar(&cfg.OCR.Format, flags.FlagOCRFormat, cfg.OCR.Format, "Recognition command output: text|json")
	pf.DurationVar(&cfg.OCR.Timeout, flags.FlagOCRTimeout, cfg.OCR.Timeout, "Per-image recognition timeout")
	pf.IntVar(&cfg.OCR.Concurrency, flags.FlagOCRConcurrency, cfg.OCR.Concurrency, "Concurrent recognitions per product")
	pf.BoolVar(&cfg.OCR.Disabled, flags.FlagNoOCR, false, "Skip text recognition")

	// Rules
	pf.StringVar(&cfg.Rules.Path, flags.FlagRulesPath, cfg.Rules.Path, "Rule definition file (JSON or YAML)")

	// Store
	pf.StringVar(&cfg.Store.Driver, flags.FlagStoreDriver, cfg.Store.Driver, "Record store: memory|sqlite|postgres")
	pf.StringVar(&cfg.Store.Path, flags.FlagStorePath, cfg.Store.Path, "SQLite database file")
	pf.StringVar(&cfg.Store.DSN, flags.FlagStoreDSN, "", "PostgreSQL connection string")
	pf.StringVar(&cfg.Store.Table, flags.FlagStoreTable, "", "PostgreSQL table name")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	// Usage errors: nothing ran.
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 3
}
