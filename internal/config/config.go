package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers accepted by the database and client sections.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// DefaultConfigPath is read by Load when HSTATS_CONFIG_PATH is unset.
const DefaultConfigPath = "config/hospital-stats.yaml"

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Client   ClientConfig   `yaml:"client"`
	Report   ReportConfig   `yaml:"report"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings for the record service.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the record service's SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"-"` // env-only, may carry a password
}

// AuthConfig contains authentication settings for the record service.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// ClientConfig drives the field client: local store, remote and sync cadence.
type ClientConfig struct {
	Owner              string   `yaml:"owner"`
	RemoteURL          string   `yaml:"remote_url"`
	APIKey             string   `yaml:"-"` // env-only, never in YAML
	SyncInterval       Duration `yaml:"sync_interval"`
	ProbeTimeout       Duration `yaml:"probe_timeout"`
	RequestTimeout     Duration `yaml:"request_timeout"`
	RequestRetries     int      `yaml:"request_retries"`
	AggregationTimeout Duration `yaml:"aggregation_timeout"`
	LocalDriver        string   `yaml:"local_driver"`
	LocalPath          string   `yaml:"local_path"`
	RedisURL           string   `yaml:"redis_url"`
	RedisPrefix        string   `yaml:"redis_prefix"`
}

// ReportConfig controls where monthly workbooks are written and uploaded.
// An empty Bucket keeps reports local-only.
type ReportConfig struct {
	OutputDir string   `yaml:"output_dir"`
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"`
	SecretKey string   `yaml:"-"`
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("HSTATS_CONFIG_PATH", DefaultConfigPath)

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/hospital-stats.db",
		},
		Client: ClientConfig{
			SyncInterval:       Duration(5 * time.Minute),
			ProbeTimeout:       Duration(10 * time.Second),
			RequestTimeout:     Duration(30 * time.Second),
			RequestRetries:     2,
			AggregationTimeout: Duration(2 * time.Minute),
			LocalDriver:        DriverSQLite,
			LocalPath:          "data/local.db",
			RedisPrefix:        "hstats",
		},
		Report: ReportConfig{
			OutputDir: "reports",
			Region:    "us-east-1",
			UseSSL:    &useSSL,
			URLExpiry: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values; unparsable values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("HSTATS_PORT", &cfg.Server.Port)
	envDuration("HSTATS_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("HSTATS_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("HSTATS_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("HSTATS_DB_DRIVER", &cfg.Database.Driver)
	envString("HSTATS_DB_PATH", &cfg.Database.Path)
	envString("HSTATS_DB_DSN", &cfg.Database.DSN)

	// Auth
	envString("HSTATS_API_KEY", &cfg.Auth.APIKey)

	// Client
	envString("HSTATS_OWNER", &cfg.Client.Owner)
	envString("HSTATS_REMOTE_URL", &cfg.Client.RemoteURL)
	envString("HSTATS_REMOTE_API_KEY", &cfg.Client.APIKey)
	envDuration("HSTATS_SYNC_INTERVAL", &cfg.Client.SyncInterval)
	envDuration("HSTATS_PROBE_TIMEOUT", &cfg.Client.ProbeTimeout)
	envDuration("HSTATS_REQUEST_TIMEOUT", &cfg.Client.RequestTimeout)
	envInt("HSTATS_REQUEST_RETRIES", &cfg.Client.RequestRetries)
	envDuration("HSTATS_AGGREGATION_TIMEOUT", &cfg.Client.AggregationTimeout)
	envString("HSTATS_LOCAL_DRIVER", &cfg.Client.LocalDriver)
	envString("HSTATS_LOCAL_PATH", &cfg.Client.LocalPath)
	envString("HSTATS_REDIS_URL", &cfg.Client.RedisURL)
	envString("HSTATS_REDIS_PREFIX", &cfg.Client.RedisPrefix)

	// Report
	envString("HSTATS_REPORT_DIR", &cfg.Report.OutputDir)
	envString("HSTATS_REPORT_BUCKET", &cfg.Report.Bucket)
	envString("HSTATS_S3_ENDPOINT", &cfg.Report.Endpoint)
	envString("HSTATS_S3_REGION", &cfg.Report.Region)
	envString("HSTATS_S3_ACCESS_KEY", &cfg.Report.AccessKey)
	envString("HSTATS_S3_SECRET_KEY", &cfg.Report.SecretKey)
	if v := os.Getenv("HSTATS_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Report.UseSSL = &b
		}
	}
	envDuration("HSTATS_S3_URL_EXPIRY", &cfg.Report.URLExpiry)

	// Log
	envString("HSTATS_LOG_LEVEL", &cfg.Log.Level)
	envString("HSTATS_LOG_FORMAT", &cfg.Log.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks values every command depends on. Secrets are checked by
// ValidateServer and ValidateClient since each command needs a different set.
func (c *Config) validate() error {
	if !slices.Contains([]string{DriverSQLite, DriverPostgres}, c.Database.Driver) {
		return fmt.Errorf("database.driver must be %s or %s, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if !slices.Contains([]string{DriverSQLite, DriverRedis, DriverMemory}, c.Client.LocalDriver) {
		return fmt.Errorf("client.local_driver must be %s, %s or %s, got %q",
			DriverSQLite, DriverRedis, DriverMemory, c.Client.LocalDriver)
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Client.SyncInterval <= 0 {
		return errors.New("client.sync_interval must be positive")
	}
	return nil
}

// ValidateServer checks the settings `serve` needs.
// In dev mode (HSTATS_DEV_MODE=true), API key validation is skipped.
func (c *Config) ValidateServer() error {
	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		return errors.New("HSTATS_DB_DSN is required for the postgres driver")
	}
	if devMode() {
		return nil
	}
	if c.Auth.APIKey == "" {
		return errors.New("HSTATS_API_KEY is required")
	}
	return nil
}

// ValidateClient checks the settings commands that talk to the remote need.
// A client without a remote URL runs offline and needs nothing further.
func (c *Config) ValidateClient() error {
	if c.Client.LocalDriver == DriverRedis && c.Client.RedisURL == "" {
		return errors.New("HSTATS_REDIS_URL is required for the redis local driver")
	}
	if c.Client.RemoteURL == "" || devMode() {
		return nil
	}
	if c.Client.APIKey == "" {
		return errors.New("HSTATS_REMOTE_API_KEY is required when a remote URL is set")
	}
	return nil
}

// NewLogHandler builds the slog handler described by the log section.
func (l LogConfig) NewLogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(l.Level)}
	if l.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// ParseLogLevel maps a level name to slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func devMode() bool {
	return os.Getenv("HSTATS_DEV_MODE") == "true"
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
