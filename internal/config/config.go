// Package config loads marginalia's settings from a YAML file, the
// environment and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables read as configuration.
// MARGINALIA_LOG__LEVEL sets log.level.
const EnvPrefix = "MARGINALIA_"

// Config is the resolved configuration.
type Config struct {
	DB         string    `koanf:"db" validate:"required"`
	State      string    `koanf:"state" validate:"required"`
	Listen     string    `koanf:"listen" validate:"required,hostname_port"`
	Timezone   string    `koanf:"timezone" validate:"omitempty,timezone"`
	DailyLimit int       `koanf:"daily_limit" validate:"gte=0"`
	ReposDir   string    `koanf:"repos_dir" validate:"required"`
	Writeback  Writeback `koanf:"writeback"`
	Log        Log       `koanf:"log"`
}

// Writeback tunes the background persistence queue.
type Writeback struct {
	Workers  int           `koanf:"workers" validate:"gte=0"`
	Attempts int           `koanf:"attempts" validate:"gte=1"`
	Backoff  time.Duration `koanf:"backoff" validate:"gte=0"`
	Buffer   int           `koanf:"buffer" validate:"gte=1"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// RegisterFlags adds every configuration flag to fs. Flag defaults are the
// built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("db", "marginalia.db", "path to the SQLite database")
	fs.String("state", "marginalia-state.json", "path to the local session state file")
	fs.String("listen", "localhost:8080", "address the HTTP API listens on")
	fs.String("timezone", "", "IANA zone that decides where a day starts (default: local)")
	fs.Int("daily-limit", 0, "global daily review limit per deck (0 keeps the stored setting)")
	fs.String("repos-dir", "repos", "where git sources are checked out")
	fs.Int("writeback-workers", 4, "background persistence workers")
	fs.Int("writeback-attempts", 3, "attempts per background write")
	fs.Duration("writeback-backoff", 500*time.Millisecond, "delay between write attempts, multiplied by the attempt number")
	fs.Int("writeback-buffer", 64, "queued writes per worker")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
}

// flagKey maps a flag name to its configuration key.
func flagKey(name string) string {
	for _, group := range []string{"writeback", "log"} {
		if rest, ok := strings.CutPrefix(name, group+"-"); ok {
			return group + "." + strings.ReplaceAll(rest, "-", "_")
		}
	}
	return strings.ReplaceAll(name, "-", "_")
}

// envKey maps MARGINALIA_WRITEBACK__BACKOFF to writeback.backoff.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load resolves the configuration from the file named by the "config" flag,
// the environment and the flags in fs, then validates it.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read config flag: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys nothing else has set.
	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if f.Name == "config" {
			return "", nil
		}
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Location returns the configured time zone, or the local zone if unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
