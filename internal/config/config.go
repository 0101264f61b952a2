package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"complyscan/internal/fetcher"
	"complyscan/internal/ocr"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - flag names in internal/flags and their wiring in internal/cli/root.go
	// - the file and environment bindings in load.go
	Fetch   Fetch
	Media   Media
	OCR     OCR
	Rules   Rules
	Store   Store
	Output  Output
	Runtime Runtime
	Server  Server
}

type Fetch struct {
	// Timeout bounds a product page fetch (see --fetch-timeout).
	Timeout time.Duration

	// UserAgent is sent with every request (see --user-agent).
	UserAgent string

	// MaxBodyBytes caps a product page body (see --max-body-bytes).
	MaxBodyBytes int64

	// RatePerHost limits requests per second to any one host (see --rate-per-host).
	// 0 disables limiting.
	RatePerHost float64

	// Burst is the number of requests allowed at once per host (see --rate-burst).
	Burst int
}

type Media struct {
	// DataDir holds downloaded images under images/<product id>/ (see --data-dir).
	DataDir string

	MaxImages   int
	Timeout     time.Duration
	MaxBytes    int64
	Concurrency int
}

type OCR struct {
	// Command is the recognizer argv. "{path}" is replaced by the image path
	// (see --ocr-command).
	Command []string

	// Format is "text" or "json" (see --ocr-format).
	Format string

	Timeout     time.Duration
	Concurrency int

	// Disabled skips recognition entirely (see --no-ocr).
	Disabled bool
}

type Rules struct {
	// Path is the JSON or YAML rule definition file (see --rules).
	Path string
}

type Store struct {
	// Driver selects the backend (see --store).
	// Allowed values: memory, sqlite, postgres.
	Driver string

	// Path is the SQLite database file (see --store-path).
	Path string

	// DSN is the PostgreSQL connection string (see --store-dsn).
	DSN string

	// Table overrides the PostgreSQL table name (see --store-table).
	Table string
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console rule output by status (see --console-filter-status).
	// Allowed values: PASS, FAIL.
	ConsoleFilterStatus []string

	// Report writes a Markdown compliance report to this path (see --report).
	Report string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool
}

type Runtime struct {
	// Timeout bounds a whole command (see --timeout). Must be > 0.
	Timeout time.Duration

	// Concurrency is the number of URLs scanned at once (see --concurrency).
	Concurrency int

	// Verbose enables debug logging and HTTP tracing.
	Verbose bool

	// LogFormat is "text" or "json" (see --log-format).
	LogFormat string

	// LogLevel is debug, info, warn or error (see --log-level).
	LogLevel string

	// ConfigFile is the TOML file layered under flags (see --config).
	ConfigFile string

	// EnvFile is the dotenv file loaded before reading COMPLYSCAN_* variables (see --env-file).
	EnvFile string
}

type Server struct {
	// Addr is the listen address for serve (see --addr).
	Addr string
}

const (
	DefaultConfigFile = "complyscan.toml"
	DefaultEnvFile    = ".env"
	DefaultRulesPath  = "rules/complianceRules.json"
)

func New() *Config {
	return &Config{
		Fetch: Fetch{
			Timeout:      10 * time.Second,
			UserAgent:    fetcher.DefaultUserAgent,
			MaxBodyBytes: 10 << 20,
			RatePerHost:  2,
			Burst:        4,
		},
		Media: Media{
			DataDir:     "data",
			MaxImages:   3,
			Timeout:     15 * time.Second,
			MaxBytes:    20 << 20,
			Concurrency: 3,
		},
		OCR: OCR{
			Command:     append([]string(nil), ocr.DefaultCommand...),
			Format:      string(ocr.FormatText),
			Timeout:     ocr.DefaultTimeout,
			Concurrency: 1,
		},
		Rules: Rules{
			Path: DefaultRulesPath,
		},
		Store: Store{
			Driver: "sqlite",
			Path:   filepath.Join("data", "complyscan.db"),
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Timeout:     5 * time.Minute,
			Concurrency: 1,
			LogFormat:   "text",
			LogLevel:    "info",
			EnvFile:     DefaultEnvFile,
		},
		Server: Server{
			Addr: ":5000",
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)
	c.Output.Emit = splitCommaList(c.Output.Emit)

	// Fetch validation
	if c.Fetch.Timeout <= 0 {
		return errors.New("--fetch-timeout must be > 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return errors.New("--max-body-bytes must be >= 0")
	}
	if c.Fetch.RatePerHost < 0 {
		return errors.New("--rate-per-host must be >= 0")
	}
	if c.Fetch.Burst < 1 {
		c.Fetch.Burst = 1
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = fetcher.DefaultUserAgent
	}

	// Media validation
	if strings.TrimSpace(c.Media.DataDir) == "" {
		return errors.New("--data-dir must not be empty")
	}
	if c.Media.MaxImages < 1 {
		return errors.New("--max-images must be >= 1")
	}
	if c.Media.Timeout <= 0 {
		return errors.New("--image-timeout must be > 0")
	}
	if c.Media.Concurrency <= 0 {
		return errors.New("--image-concurrency must be >= 1")
	}

	// OCR validation
	c.OCR.Format = normalizeEnumValue(c.OCR.Format)
	if c.OCR.Format == "" {
		c.OCR.Format = string(ocr.FormatText)
	}
	if c.OCR.Format != string(ocr.FormatText) && c.OCR.Format != string(ocr.FormatJSON) {
		return fmt.Errorf("unsupported --ocr-format: %s (must be one of: text, json)", c.OCR.Format)
	}
	if c.OCR.Timeout <= 0 {
		return errors.New("--ocr-timeout must be > 0")
	}
	if c.OCR.Concurrency <= 0 {
		return errors.New("--ocr-concurrency must be >= 1")
	}

	// Store validation
	c.Store.Driver = normalizeEnumValue(c.Store.Driver)
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("--store-path is required for the sqlite store")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("--store-dsn is required for the postgres store")
		}
	case "":
		return errors.New("--store must be one of: memory, sqlite, postgres")
	default:
		return fmt.Errorf("unsupported --store: %s (must be one of: memory, sqlite, postgres)", c.Store.Driver)
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for _, st := range c.Output.ConsoleFilterStatus {
		if v := strings.ToUpper(st); v != "PASS" && v != "FAIL" {
			return fmt.Errorf("unsupported --console-filter-status value: %s (must be one of: PASS, FAIL)", st)
		}
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", emit)
		}
		c.Output.Emit[i] = v
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat != "text" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: text, json)", c.Runtime.LogFormat)
	}
	c.Runtime.LogLevel = normalizeEnumValue(c.Runtime.LogLevel)
	switch c.Runtime.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Runtime.LogLevel)
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("--addr must not be empty")
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
