package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.BindAddress == "" {
		errs = append(errs, "server.bind_address must not be empty")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.TLSEnabled {
		if cfg.Server.CertFile == "" {
			errs = append(errs, "server.cert_file must be set when tls_enabled is true")
		}
		if cfg.Server.KeyFile == "" {
			errs = append(errs, "server.key_file must be set when tls_enabled is true")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// Upstream validation
	if cfg.Upstream.ConnectTimeout < 0 {
		errs = append(errs, fmt.Sprintf("upstream.connect_timeout must be non-negative, got %d", cfg.Upstream.ConnectTimeout))
	}
	if cfg.Upstream.HeaderTimeout < 0 {
		errs = append(errs, fmt.Sprintf("upstream.header_timeout must be non-negative, got %d", cfg.Upstream.HeaderTimeout))
	}
	if cfg.Upstream.MaxIdleConns < 0 {
		errs = append(errs, fmt.Sprintf("upstream.max_idle_conns must be non-negative, got %d", cfg.Upstream.MaxIdleConns))
	}
	if cfg.Upstream.MaxIdleConnsPerHost < 0 {
		errs = append(errs, fmt.Sprintf("upstream.max_idle_conns_per_host must be non-negative, got %d", cfg.Upstream.MaxIdleConnsPerHost))
	}
	if cfg.Upstream.IdleConnTimeout < 0 {
		errs = append(errs, fmt.Sprintf("upstream.idle_conn_timeout must be non-negative, got %d", cfg.Upstream.IdleConnTimeout))
	}
	if cfg.Upstream.BreakerEnabled {
		if cfg.Upstream.BreakerThreshold < 1 {
			errs = append(errs, fmt.Sprintf("upstream.breaker_threshold must be at least 1, got %d", cfg.Upstream.BreakerThreshold))
		}
		if cfg.Upstream.BreakerResetSeconds <= 0 {
			errs = append(errs, fmt.Sprintf("upstream.breaker_reset_seconds must be positive, got %d", cfg.Upstream.BreakerResetSeconds))
		}
		if cfg.Upstream.BreakerHalfOpenMax < 1 {
			errs = append(errs, fmt.Sprintf("upstream.breaker_half_open_max must be at least 1, got %d", cfg.Upstream.BreakerHalfOpenMax))
		}
	}

	// Request log validation
	if cfg.RequestLog.Enabled && cfg.RequestLog.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("request_log.retention_days must be at least 1, got %d", cfg.RequestLog.RetentionDays))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidTracingExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", ValidTracingExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
