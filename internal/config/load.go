package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"complyscan/internal/flags"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "COMPLYSCAN_"

// fileConfig mirrors Config as it appears in a TOML file. Pointer fields
// distinguish "absent" from zero values; durations are Go duration strings.
type fileConfig struct {
	Fetch struct {
		Timeout      *string  `toml:"timeout"`
		UserAgent    *string  `toml:"user_agent"`
		MaxBodyBytes *int64   `toml:"max_body_bytes"`
		RatePerHost  *float64 `toml:"rate_per_host"`
		Burst        *int     `toml:"burst"`
	} `toml:"fetch"`
	Media struct {
		DataDir     *string `toml:"data_dir"`
		MaxImages   *int    `toml:"max_images"`
		Timeout     *string `toml:"timeout"`
		MaxBytes    *int64  `toml:"max_bytes"`
		Concurrency *int    `toml:"concurrency"`
	} `toml:"media"`
	OCR struct {
		Command     []string `toml:"command"`
		Format      *string  `toml:"format"`
		Timeout     *string  `toml:"timeout"`
		Concurrency *int     `toml:"concurrency"`
		Disabled    *bool    `toml:"disabled"`
	} `toml:"ocr"`
	Rules struct {
		Path *string `toml:"path"`
	} `toml:"rules"`
	Store struct {
		Driver *string `toml:"driver"`
		Path   *string `toml:"path"`
		DSN    *string `toml:"dsn"`
		Table  *string `toml:"table"`
	} `toml:"store"`
	Output struct {
		ConsoleFormat       *string  `toml:"console_format"`
		ConsoleFilterStatus []string `toml:"console_filter_status"`
		Report              *string  `toml:"report"`
		Out                 *string  `toml:"out"`
		OutFormat           *string  `toml:"out_format"`
		Emit                []string `toml:"emit"`
		NoConsole           *bool    `toml:"no_console"`
	} `toml:"output"`
	Runtime struct {
		Timeout     *string `toml:"timeout"`
		Concurrency *int    `toml:"concurrency"`
		Verbose     *bool   `toml:"verbose"`
		LogFormat   *string `toml:"log_format"`
		LogLevel    *string `toml:"log_level"`
	} `toml:"runtime"`
	Server struct {
		Addr *string `toml:"addr"`
	} `toml:"server"`
}

// Changed reports whether a flag was set explicitly. Values set by flags are
// never overwritten by the file or the environment.
type Changed func(flag string) bool

// Load layers the TOML file at c.Runtime.ConfigFile (or complyscan.toml when
// present) and then COMPLYSCAN_* environment variables onto c. The dotenv
// file at c.Runtime.EnvFile is loaded first; variables already present in the
// environment win over it. changed may be nil.
//
// An explicitly named config file must exist; the default one is optional.
func Load(c *Config, changed Changed) error {
	if changed == nil {
		changed = func(string) bool { return false }
	}

	path, required := c.Runtime.ConfigFile, true
	if path == "" {
		path, required = DefaultConfigFile, false
	}
	if err := c.loadFile(path, required, changed); err != nil {
		return err
	}

	if c.Runtime.EnvFile != "" {
		if err := godotenv.Load(c.Runtime.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", c.Runtime.EnvFile, err)
		}
	}
	return c.applyEnv(os.LookupEnv, changed)
}

func (c *Config) loadFile(path string, required bool, changed Changed) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := toml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	b := binder{changed: changed}
	b.str(flags.FlagFetchTimeout, f.Fetch.Timeout, durationSetter(&c.Fetch.Timeout))
	b.str(flags.FlagUserAgent, f.Fetch.UserAgent, stringSetter(&c.Fetch.UserAgent))
	setIf(b, flags.FlagMaxBodyBytes, f.Fetch.MaxBodyBytes, &c.Fetch.MaxBodyBytes)
	setIf(b, flags.FlagRatePerHost, f.Fetch.RatePerHost, &c.Fetch.RatePerHost)
	setIf(b, flags.FlagRateBurst, f.Fetch.Burst, &c.Fetch.Burst)

	setIf(b, flags.FlagDataDir, f.Media.DataDir, &c.Media.DataDir)
	setIf(b, flags.FlagMaxImages, f.Media.MaxImages, &c.Media.MaxImages)
	b.str(flags.FlagImageTimeout, f.Media.Timeout, durationSetter(&c.Media.Timeout))
	setIf(b, flags.FlagImageMaxBytes, f.Media.MaxBytes, &c.Media.MaxBytes)
	setIf(b, flags.FlagImageConcurrency, f.Media.Concurrency, &c.Media.Concurrency)

	if len(f.OCR.Command) > 0 && !changed(flags.FlagOCRCommand) {
		c.OCR.Command = f.OCR.Command
	}
	setIf(b, flags.FlagOCRFormat, f.OCR.Format, &c.OCR.Format)
	b.str(flags.FlagOCRTimeout, f.OCR.Timeout, durationSetter(&c.OCR.Timeout))
	setIf(b, flags.FlagOCRConcurrency, f.OCR.Concurrency, &c.OCR.Concurrency)
	setIf(b, flags.FlagNoOCR, f.OCR.Disabled, &c.OCR.Disabled)

	setIf(b, flags.FlagRulesPath, f.Rules.Path, &c.Rules.Path)

	setIf(b, flags.FlagStoreDriver, f.Store.Driver, &c.Store.Driver)
	setIf(b, flags.FlagStorePath, f.Store.Path, &c.Store.Path)
	setIf(b, flags.FlagStoreDSN, f.Store.DSN, &c.Store.DSN)
	setIf(b, flags.FlagStoreTable, f.Store.Table, &c.Store.Table)

	setIf(b, flags.FlagConsoleFormat, f.Output.ConsoleFormat, &c.Output.ConsoleFormat)
	if f.Output.ConsoleFilterStatus != nil && !changed(flags.FlagConsoleFilterStatus) {
		c.Output.ConsoleFilterStatus = f.Output.ConsoleFilterStatus
	}
	setIf(b, flags.FlagReport, f.Output.Report, &c.Output.Report)
	setIf(b, flags.FlagOut, f.Output.Out, &c.Output.Out)
	setIf(b, flags.FlagOutFormat, f.Output.OutFormat, &c.Output.OutFormat)
	if f.Output.Emit != nil && !changed(flags.FlagEmit) {
		c.Output.Emit = f.Output.Emit
	}
	setIf(b, flags.FlagNoConsole, f.Output.NoConsole, &c.Output.NoConsole)

	b.str(flags.FlagTimeout, f.Runtime.Timeout, durationSetter(&c.Runtime.Timeout))
	setIf(b, flags.FlagConcurrency, f.Runtime.Concurrency, &c.Runtime.Concurrency)
	setIf(b, flags.FlagVerbose, f.Runtime.Verbose, &c.Runtime.Verbose)
	setIf(b, flags.FlagLogFormat, f.Runtime.LogFormat, &c.Runtime.LogFormat)
	setIf(b, flags.FlagLogLevel, f.Runtime.LogLevel, &c.Runtime.LogLevel)

	setIf(b, flags.FlagAddr, f.Server.Addr, &c.Server.Addr)

	if b.err != nil {
		return fmt.Errorf("config file %s: %w", path, b.err)
	}
	return nil
}

// envBinding maps one COMPLYSCAN_* variable onto a config field.
type envBinding struct {
	key  string
	flag string
	set  func(string) error
}

func (c *Config) envBindings() []envBinding {
	return []envBinding{
		{"FETCH_TIMEOUT", flags.FlagFetchTimeout, durationSetter(&c.Fetch.Timeout)},
		{"USER_AGENT", flags.FlagUserAgent, stringSetter(&c.Fetch.UserAgent)},
		{"RATE_PER_HOST", flags.FlagRatePerHost, floatSetter(&c.Fetch.RatePerHost)},
		{"DATA_DIR", flags.FlagDataDir, stringSetter(&c.Media.DataDir)},
		{"MAX_IMAGES", flags.FlagMaxImages, intSetter(&c.Media.MaxImages)},
		{"OCR_COMMAND", flags.FlagOCRCommand, func(v string) error {
			c.OCR.Command = strings.Fields(v)
			return nil
		}},
		{"OCR_FORMAT", flags.FlagOCRFormat, stringSetter(&c.OCR.Format)},
		{"OCR_TIMEOUT", flags.FlagOCRTimeout, durationSetter(&c.OCR.Timeout)},
		{"RULES_PATH", flags.FlagRulesPath, stringSetter(&c.Rules.Path)},
		{"STORE_DRIVER", flags.FlagStoreDriver, stringSetter(&c.Store.Driver)},
		{"STORE_PATH", flags.FlagStorePath, stringSetter(&c.Store.Path)},
		{"STORE_DSN", flags.FlagStoreDSN, stringSetter(&c.Store.DSN)},
		{"CONCURRENCY", flags.FlagConcurrency, intSetter(&c.Runtime.Concurrency)},
		{"LOG_FORMAT", flags.FlagLogFormat, stringSetter(&c.Runtime.LogFormat)},
		{"LOG_LEVEL", flags.FlagLogLevel, stringSetter(&c.Runtime.LogLevel)},
		{"ADDR", flags.FlagAddr, stringSetter(&c.Server.Addr)},
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool), changed Changed) error {
	for _, bnd := range c.envBindings() {
		if changed(bnd.flag) {
			continue
		}
		v, ok := lookup(EnvPrefix + bnd.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := bnd.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, bnd.key, err)
		}
	}
	return nil
}

type binder struct {
	changed Changed
	err     error
}

func (b *binder) str(flag string, v *string, set func(string) error) {
	if v == nil || b.err != nil || b.changed(flag) {
		return
	}
	if err := set(*v); err != nil {
		b.err = fmt.Errorf("%s: %w", flag, err)
	}
}

func setIf[T any](b binder, flag string, v *T, dst *T) {
	if v == nil || b.changed(flag) {
		return
	}
	*dst = *v
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func floatSetter(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}
