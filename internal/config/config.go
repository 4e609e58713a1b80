// Package config loads tokbot settings from defaults, a TOML file, .env and
// the environment. CLI flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ProviderNames lists the built-in providers in default priority order.
var ProviderNames = []string{"snaptik", "tikmate", "mdown", "ttdownloader"}

// ErrMissingToken is returned when the bot is started without a token.
var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// Duration is a time.Duration that decodes from strings like "90s" or "3m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds application configuration.
type Config struct {
	BotToken         string            `toml:"bot_token"`
	MaxConcurrent    int               `toml:"max_concurrent"`
	MaxFileSize      int64             `toml:"max_file_size"`
	Providers        []string          `toml:"providers"`
	Endpoints        map[string]string `toml:"endpoints"` // provider name -> base URL override
	RequestTimeout   Duration          `toml:"request_timeout"`
	FetchConcurrency int               `toml:"fetch_concurrency"`
	HTTPAddr         string            `toml:"http_addr"`
	WebhookSecret    string            `toml:"webhook_secret"` // enables POST /deliver
	LogLevel         string            `toml:"log_level"`
	LogFormat        string            `toml:"log_format"`
	OutputDir        string            `toml:"output_dir"`

	Database DatabaseConfig  `toml:"database"`
	Redis    RedisConfig     `toml:"redis"`
	Commands []CommandConfig `toml:"commands"`
}

// CommandConfig defines a provider backed by an external program that prints
// one media URL per line, e.g. yt-dlp -g.
type CommandConfig struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"` // {url} is replaced with the source link
	Kind    string   `toml:"kind"` // declared kind for every line, optional
}

// DatabaseConfig selects and locates the usage store.
type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite or postgres
	Path   string `toml:"path"`
	URL    string `toml:"url"`
}

// RedisConfig configures the optional usage event stream.
type RedisConfig struct {
	URL    string `toml:"url"`
	Stream string `toml:"stream"`
	MaxLen int64  `toml:"max_len"` // stream length cap, 0 disables trimming
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		MaxConcurrent:    5,
		MaxFileSize:      60 * 1024 * 1024,
		Providers:        slices.Clone(ProviderNames),
		RequestTimeout:   Duration(3 * time.Minute),
		FetchConcurrency: 4,
		HTTPAddr:         "127.0.0.1:8080",
		LogLevel:         "info",
		LogFormat:        "text",
		OutputDir:        ".",
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   DefaultDBPath(),
		},
		Redis: RedisConfig{
			Stream: "tokbot:usage",
			MaxLen: 100_000,
		},
	}
}

// DefaultDBPath returns the default database path using XDG_DATA_HOME.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "tokbot", "usage.db")
}

// DefaultPath returns the config file path using XDG_CONFIG_HOME.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "tokbot", "config.toml")
}

// Load builds the configuration: defaults < TOML file < .env < environment.
// An empty path means DefaultPath, which may be missing. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.WebhookSecret, "WEBHOOK_SECRET")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.OutputDir, "OUTPUT_DIR")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Path, "DB_PATH")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Redis.Stream, "REDIS_STREAM")

	if v := os.Getenv("PROVIDERS"); v != "" {
		c.Providers = splitList(v)
	}

	if v := os.Getenv("MAX_CONCURRENT_REQUESTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_REQUESTS: %w", err)
		}
		c.MaxConcurrent = n
	}
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FETCH_CONCURRENCY: %w", err)
		}
		c.FetchConcurrency = n
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE: %w", err)
		}
		c.MaxFileSize = n
	}
	if v := os.Getenv("REDIS_MAX_LEN"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("REDIS_MAX_LEN: %w", err)
		}
		c.Redis.MaxLen = n
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if err := c.RequestTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	} else if dsn := postgresURLFromParts(); dsn != "" {
		c.Database.URL = dsn
	}
	return nil
}

// postgresURLFromParts builds a DSN from DB_HOST and friends. It returns ""
// when none of them is set.
func postgresURLFromParts() string {
	host, port := os.Getenv("DB_HOST"), os.Getenv("DB_PORT")
	name, user, pass := os.Getenv("DB_NAME"), os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD")
	if host == "" && name == "" && user == "" {
		return ""
	}
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if name == "" {
		name = "tokbot"
	}
	if user == "" {
		user = "postgres"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	return u.String()
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch_concurrency must be positive, got %d", c.FetchConcurrency)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", time.Duration(c.RequestTimeout))
	}
	if c.Redis.MaxLen < 0 {
		return fmt.Errorf("redis.max_len must not be negative, got %d", c.Redis.MaxLen)
	}

	known := slices.Clone(ProviderNames)
	for _, cmd := range c.Commands {
		if cmd.Name == "" || cmd.Command == "" {
			return errors.New("commands need a name and a command")
		}
		if slices.Contains(known, cmd.Name) {
			return fmt.Errorf("command provider %q clashes with an existing provider", cmd.Name)
		}
		known = append(known, cmd.Name)
	}

	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, name := range c.Providers {
		if !slices.Contains(known, name) {
			return fmt.Errorf("unknown provider %q (valid: %s)", name, strings.Join(known, ", "))
		}
		if seen[name] {
			return fmt.Errorf("provider %q listed twice", name)
		}
		seen[name] = true
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url (or DATABASE_URL / DB_HOST) is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q (valid: sqlite, postgres)", c.Database.Driver)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}

// Timeout returns the request timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout)
}

// ExpandPath resolves a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
