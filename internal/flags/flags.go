package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// config layering. Keeping these as constants avoids drift between Cobra flag
// wiring and the file/env loader, which must skip values a flag already set.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Rules.Path, flags.FlagRulesPath, "", "...")
//	arg := "--" + flags.FlagRulesPath
const (
	// Global
	FlagConfig    = "config"
	FlagEnvFile   = "env-file"
	FlagVerbose   = "verbose"
	FlagLogFormat = "log-format"
	FlagLogLevel  = "log-level"

	// Fetch
	FlagFetchTimeout = "fetch-timeout"
	FlagUserAgent    = "user-agent"
	FlagMaxBodyBytes = "max-body-bytes"
	FlagRatePerHost  = "rate-per-host"
	FlagRateBurst    = "rate-burst"

	// Media
	FlagDataDir          = "data-dir"
	FlagMaxImages        = "max-images"
	FlagImageTimeout     = "image-timeout"
	FlagImageMaxBytes    = "image-max-bytes"
	FlagImageConcurrency = "image-concurrency"

	// OCR
	FlagOCRCommand     = "ocr-command"
	FlagOCRFormat      = "ocr-format"
	FlagOCRTimeout     = "ocr-timeout"
	FlagOCRConcurrency = "ocr-concurrency"
	FlagNoOCR          = "no-ocr"

	// Rules
	FlagRulesPath = "rules"

	// Store
	FlagStoreDriver = "store"
	FlagStorePath   = "store-path"
	FlagStoreDSN    = "store-dsn"
	FlagStoreTable  = "store-table"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// Runtime
	FlagTimeout     = "timeout"
	FlagConcurrency = "concurrency"

	// Server
	FlagAddr = "addr"
)
