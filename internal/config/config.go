package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for routeman.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"      toml:"server"`
	Admin      AdminConfig      `mapstructure:"admin"       toml:"admin"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"    toml:"upstream"`
	RequestLog RequestLogConfig `mapstructure:"request_log" toml:"request_log"`
	Tracing    TracingConfig    `mapstructure:"tracing"     toml:"tracing"`
}

// ServerConfig holds the gateway listener settings.
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address"  toml:"bind_address"`
	Port         int    `mapstructure:"port"          toml:"port"`
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"      toml:"data_dir"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"   toml:"tls_enabled"`
	CertFile     string `mapstructure:"cert_file"     toml:"cert_file"`
	KeyFile      string `mapstructure:"key_file"      toml:"key_file"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"` // seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`  // seconds
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"` // bytes
}

// Addr returns the host:port the gateway listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// AdminConfig holds the control-socket settings.
type AdminConfig struct {
	// SocketPath overrides the default <data_dir>/admin.sock location.
	SocketPath string `mapstructure:"socket_path" toml:"socket_path"`
}

// UpstreamConfig controls outbound connections to backend providers.
type UpstreamConfig struct {
	ConnectTimeout      int `mapstructure:"connect_timeout"       toml:"connect_timeout"`       // seconds
	HeaderTimeout       int `mapstructure:"header_timeout"        toml:"header_timeout"`        // seconds
	MaxIdleConns        int `mapstructure:"max_idle_conns"        toml:"max_idle_conns"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_conns_per_host" toml:"max_idle_conns_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_conn_timeout"     toml:"idle_conn_timeout"` // seconds

	BreakerEnabled      bool `mapstructure:"breaker_enabled"       toml:"breaker_enabled"`
	BreakerThreshold    int  `mapstructure:"breaker_threshold"     toml:"breaker_threshold"`
	BreakerResetSeconds int  `mapstructure:"breaker_reset_seconds" toml:"breaker_reset_seconds"`
	BreakerHalfOpenMax  int  `mapstructure:"breaker_half_open_max" toml:"breaker_half_open_max"`
}

// ConnectTimeoutDuration returns the dial timeout as a time.Duration.
func (u UpstreamConfig) ConnectTimeoutDuration() time.Duration {
	if u.ConnectTimeout <= 0 {
		return time.Duration(DefaultConnectTimeout) * time.Second
	}
	return time.Duration(u.ConnectTimeout) * time.Second
}

// HeaderTimeoutDuration returns the response-header timeout as a time.Duration.
func (u UpstreamConfig) HeaderTimeoutDuration() time.Duration {
	if u.HeaderTimeout <= 0 {
		return time.Duration(DefaultHeaderTimeout) * time.Second
	}
	return time.Duration(u.HeaderTimeout) * time.Second
}

// RequestLogConfig controls the persisted per-request dispatch log.
type RequestLogConfig struct {
	Enabled       bool `mapstructure:"enabled"        toml:"enabled"`
	RetentionDays int  `mapstructure:"retention_days" toml:"retention_days"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "routeman"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// AdminSocketPath resolves the control-socket path, defaulting to
// <data_dir>/admin.sock when no override is configured.
func (c *Config) AdminSocketPath() string {
	if c.Admin.SocketPath != "" {
		return expandHome(c.Admin.SocketPath)
	}
	return filepath.Join(c.Server.DataDir, "admin.sock")
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (ROUTEMAN_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.routeman/routeman.toml
//  4. ./routeman.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: ROUTEMAN_SERVER_PORT etc.
	v.SetEnvPrefix("ROUTEMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Determine which file(s) to read.
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".routeman"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("routeman")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Store the resolved config file path.
	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Expand ~ in data_dir.
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.routeman/routeman.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".routeman")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// Admin
	v.SetDefault("admin.socket_path", d.Admin.SocketPath)

	// Upstream
	v.SetDefault("upstream.connect_timeout", d.Upstream.ConnectTimeout)
	v.SetDefault("upstream.header_timeout", d.Upstream.HeaderTimeout)
	v.SetDefault("upstream.max_idle_conns", d.Upstream.MaxIdleConns)
	v.SetDefault("upstream.max_idle_conns_per_host", d.Upstream.MaxIdleConnsPerHost)
	v.SetDefault("upstream.idle_conn_timeout", d.Upstream.IdleConnTimeout)
	v.SetDefault("upstream.breaker_enabled", d.Upstream.BreakerEnabled)
	v.SetDefault("upstream.breaker_threshold", d.Upstream.BreakerThreshold)
	v.SetDefault("upstream.breaker_reset_seconds", d.Upstream.BreakerResetSeconds)
	v.SetDefault("upstream.breaker_half_open_max", d.Upstream.BreakerHalfOpenMax)

	// Request log
	v.SetDefault("request_log.enabled", d.RequestLog.Enabled)
	v.SetDefault("request_log.retention_days", d.RequestLog.RetentionDays)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
