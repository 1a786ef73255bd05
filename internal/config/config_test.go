package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

var envVars = []string{
	"HSTATS_CONFIG_PATH",
	"HSTATS_DEV_MODE",
	"HSTATS_PORT",
	"HSTATS_READ_TIMEOUT",
	"HSTATS_WRITE_TIMEOUT",
	"HSTATS_SHUTDOWN_TIMEOUT",
	"HSTATS_DB_DRIVER",
	"HSTATS_DB_PATH",
	"HSTATS_DB_DSN",
	"HSTATS_API_KEY",
	"HSTATS_OWNER",
	"HSTATS_REMOTE_URL",
	"HSTATS_REMOTE_API_KEY",
	"HSTATS_SYNC_INTERVAL",
	"HSTATS_PROBE_TIMEOUT",
	"HSTATS_REQUEST_TIMEOUT",
	"HSTATS_REQUEST_RETRIES",
	"HSTATS_AGGREGATION_TIMEOUT",
	"HSTATS_LOCAL_DRIVER",
	"HSTATS_LOCAL_PATH",
	"HSTATS_REDIS_URL",
	"HSTATS_REDIS_PREFIX",
	"HSTATS_REPORT_DIR",
	"HSTATS_REPORT_BUCKET",
	"HSTATS_S3_ENDPOINT",
	"HSTATS_S3_REGION",
	"HSTATS_S3_ACCESS_KEY",
	"HSTATS_S3_SECRET_KEY",
	"HSTATS_S3_USE_SSL",
	"HSTATS_S3_URL_EXPIRY",
	"HSTATS_LOG_LEVEL",
	"HSTATS_LOG_FORMAT",
}

// clearEnv blanks every config env var for the duration of the test.
// Empty values never override, so blank is equivalent to unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

// dur converts Duration to time.Duration for comparison
func dur(d Duration) time.Duration {
	return time.Duration(d)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if dur(cfg.Server.ShutdownTimeout) != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 15s", dur(cfg.Server.ShutdownTimeout))
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Database.Path != "data/hospital-stats.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "data/hospital-stats.db")
	}
	if dur(cfg.Client.SyncInterval) != 5*time.Minute {
		t.Errorf("Client.SyncInterval = %v, want 5m", dur(cfg.Client.SyncInterval))
	}
	if dur(cfg.Client.AggregationTimeout) != 2*time.Minute {
		t.Errorf("Client.AggregationTimeout = %v, want 2m", dur(cfg.Client.AggregationTimeout))
	}
	if cfg.Client.LocalDriver != DriverSQLite {
		t.Errorf("Client.LocalDriver = %q, want %q", cfg.Client.LocalDriver, DriverSQLite)
	}
	if cfg.Client.RedisPrefix != "hstats" {
		t.Errorf("Client.RedisPrefix = %q, want hstats", cfg.Client.RedisPrefix)
	}
	if cfg.Report.UseSSL == nil || !*cfg.Report.UseSSL {
		t.Error("Report.UseSSL should default to true")
	}
	if cfg.Report.Bucket != "" {
		t.Errorf("Report.Bucket = %q, want empty", cfg.Report.Bucket)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HSTATS_PORT", "9090")
	t.Setenv("HSTATS_DB_DRIVER", "postgres")
	t.Setenv("HSTATS_DB_DSN", "postgres://u:p@localhost/hstats")
	t.Setenv("HSTATS_API_KEY", "server-key")
	t.Setenv("HSTATS_OWNER", "user-1")
	t.Setenv("HSTATS_REMOTE_URL", "http://records.local")
	t.Setenv("HSTATS_REMOTE_API_KEY", "client-key")
	t.Setenv("HSTATS_SYNC_INTERVAL", "90s")
	t.Setenv("HSTATS_REQUEST_RETRIES", "5")
	t.Setenv("HSTATS_LOCAL_DRIVER", "redis")
	t.Setenv("HSTATS_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("HSTATS_REPORT_BUCKET", "reports")
	t.Setenv("HSTATS_S3_ACCESS_KEY", "AKIAEXAMPLE")
	t.Setenv("HSTATS_S3_SECRET_KEY", "secret")
	t.Setenv("HSTATS_S3_USE_SSL", "false")
	t.Setenv("HSTATS_LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN == "" {
		t.Errorf("Database = %+v, want postgres with DSN", cfg.Database)
	}
	if cfg.Auth.APIKey != "server-key" || cfg.Client.APIKey != "client-key" {
		t.Errorf("keys = %q/%q, want server-key/client-key", cfg.Auth.APIKey, cfg.Client.APIKey)
	}
	if cfg.Client.Owner != "user-1" || cfg.Client.RemoteURL != "http://records.local" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if dur(cfg.Client.SyncInterval) != 90*time.Second {
		t.Errorf("Client.SyncInterval = %v, want 90s", dur(cfg.Client.SyncInterval))
	}
	if cfg.Client.RequestRetries != 5 {
		t.Errorf("Client.RequestRetries = %d, want 5", cfg.Client.RequestRetries)
	}
	if cfg.Client.LocalDriver != DriverRedis || cfg.Client.RedisURL == "" {
		t.Errorf("Client local = %q %q", cfg.Client.LocalDriver, cfg.Client.RedisURL)
	}
	if cfg.Report.Bucket != "reports" || cfg.Report.AccessKey != "AKIAEXAMPLE" || cfg.Report.SecretKey != "secret" {
		t.Errorf("Report = %+v", cfg.Report)
	}
	if cfg.Report.UseSSL == nil || *cfg.Report.UseSSL {
		t.Error("Report.UseSSL should be false when env var is 'false'")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ValidateServer() error = %v", err)
	}
	if err := cfg.ValidateClient(); err != nil {
		t.Errorf("ValidateClient() error = %v", err)
	}
}

func TestLoad_UnparsableEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("HSTATS_PORT", "eighty")
	t.Setenv("HSTATS_SYNC_INTERVAL", "often")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080 (default)", cfg.Server.Port)
	}
	if dur(cfg.Client.SyncInterval) != 5*time.Minute {
		t.Errorf("Client.SyncInterval = %v, want 5m (default)", dur(cfg.Client.SyncInterval))
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HSTATS_CONFIG_PATH", writeConfig(t, "client:\n  owner: from-file\n"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.Owner != "from-file" {
		t.Errorf("Client.Owner = %q, want from-file", cfg.Client.Owner)
	}
}

func TestLoad_MissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HSTATS_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadFromFile_ValidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9999
  read_timeout: 10s
database:
  driver: sqlite
  path: /var/lib/hstats/service.db
client:
  owner: user-7
  remote_url: http://records.local
  sync_interval: 1m
  local_driver: memory
report:
  output_dir: /tmp/reports
  bucket: yaml-bucket
  endpoint: minio.local:9000
  use_ssl: false
  url_expiry: 10m
log:
  level: debug
  format: text
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 9999 || dur(cfg.Server.ReadTimeout) != 10*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	// unset keys keep their defaults
	if dur(cfg.Server.WriteTimeout) != 30*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want 30s default", dur(cfg.Server.WriteTimeout))
	}
	if cfg.Database.Path != "/var/lib/hstats/service.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Client.Owner != "user-7" || cfg.Client.LocalDriver != DriverMemory {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if dur(cfg.Client.SyncInterval) != time.Minute {
		t.Errorf("Client.SyncInterval = %v, want 1m", dur(cfg.Client.SyncInterval))
	}
	if cfg.Report.Bucket != "yaml-bucket" || cfg.Report.Endpoint != "minio.local:9000" {
		t.Errorf("Report = %+v", cfg.Report)
	}
	if cfg.Report.UseSSL == nil || *cfg.Report.UseSSL {
		t.Error("Report.UseSSL should be false from YAML")
	}
	if dur(cfg.Report.URLExpiry) != 10*time.Minute {
		t.Errorf("Report.URLExpiry = %v, want 10m", dur(cfg.Report.URLExpiry))
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  port: 7000\nclient:\n  owner: yaml-owner\n")
	t.Setenv("HSTATS_OWNER", "env-owner")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000 (YAML)", cfg.Server.Port)
	}
	if cfg.Client.Owner != "env-owner" {
		t.Errorf("Client.Owner = %q, want env-owner (env override)", cfg.Client.Owner)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid yaml", "server:\n  port: [not an int\n", "parsing config file"},
		{"invalid duration", "client:\n  sync_interval: soon\n", "invalid duration"},
		{"unknown database driver", "database:\n  driver: mysql\n", "database.driver"},
		{"unknown local driver", "client:\n  local_driver: bolt\n", "client.local_driver"},
		{"unknown log format", "log:\n  format: xml\n", "log.format"},
		{"zero sync interval", "client:\n  sync_interval: 0s\n", "sync_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadFromFile() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFromFile(missing) error = nil, want error")
	}
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		devMode bool
		mutate  func(*Config)
		wantErr bool
	}{
		{"missing api key", false, func(c *Config) {}, true},
		{"api key set", false, func(c *Config) { c.Auth.APIKey = "k" }, false},
		{"dev mode bypasses key", true, func(c *Config) {}, false},
		{"postgres needs dsn even in dev mode", true, func(c *Config) { c.Database.Driver = DriverPostgres }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.devMode {
				t.Setenv("HSTATS_DEV_MODE", "true")
			}
			cfg := newDefaults()
			tt.mutate(cfg)
			if err := cfg.ValidateServer(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClient(t *testing.T) {
	tests := []struct {
		name    string
		devMode bool
		mutate  func(*Config)
		wantErr bool
	}{
		{"offline client", false, func(c *Config) {}, false},
		{"remote without key", false, func(c *Config) { c.Client.RemoteURL = "http://r" }, true},
		{"remote with key", false, func(c *Config) {
			c.Client.RemoteURL = "http://r"
			c.Client.APIKey = "k"
		}, false},
		{"dev mode bypasses key", true, func(c *Config) { c.Client.RemoteURL = "http://r" }, false},
		{"redis without url", false, func(c *Config) { c.Client.LocalDriver = DriverRedis }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.devMode {
				t.Setenv("HSTATS_DEV_MODE", "true")
			}
			cfg := newDefaults()
			tt.mutate(cfg)
			if err := cfg.ValidateClient(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SecretsNotInYAML(t *testing.T) {
	cfg := newDefaults()
	cfg.Auth.APIKey = "secret-server-key"
	cfg.Client.APIKey = "secret-client-key"
	cfg.Database.DSN = "postgres://u:secret-password@db/hstats"
	cfg.Report.AccessKey = "secret-access-key"
	cfg.Report.SecretKey = "secret-secret-key"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}

	out := string(data)
	for _, secret := range []string{"secret-server-key", "secret-client-key", "secret-password", "secret-access-key", "secret-secret-key"} {
		if strings.Contains(out, secret) {
			t.Errorf("YAML contains %q:\n%s", secret, out)
		}
	}
	// durations round-trip as strings
	if !strings.Contains(out, "sync_interval: 5m0s") {
		t.Errorf("YAML missing formatted sync_interval:\n%s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogConfig_NewLogHandler(t *testing.T) {
	var buf strings.Builder

	slog.New(LogConfig{Level: "warn", Format: "json"}.NewLogHandler(&buf)).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}

	slog.New(LogConfig{Level: "debug", Format: "json"}.NewLogHandler(&buf)).Debug("kept", "component", "config")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"component":"config"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	slog.New(LogConfig{Level: "info", Format: "text"}.NewLogHandler(&buf)).Info("kept", "component", "config")
	if !strings.Contains(buf.String(), "component=config") {
		t.Errorf("text output = %q", buf.String())
	}
}
