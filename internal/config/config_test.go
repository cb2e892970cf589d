package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
bind_address = "127.0.0.1"
port = 9090
log_level = "debug"
data_dir = "` + dir + `"

[upstream]
connect_timeout = 5
header_timeout = 15
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Upstream.ConnectTimeout != 5 {
		t.Errorf("ConnectTimeout: got %d, want 5", cfg.Upstream.ConnectTimeout)
	}
	if cfg.Upstream.HeaderTimeout != 15 {
		t.Errorf("HeaderTimeout: got %d, want 15", cfg.Upstream.HeaderTimeout)
	}
	// Unset sections keep their defaults.
	if cfg.Upstream.BreakerThreshold != DefaultBreakerThreshold {
		t.Errorf("BreakerThreshold: got %d, want %d", cfg.Upstream.BreakerThreshold, DefaultBreakerThreshold)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 7680
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("ROUTEMAN_SERVER_PORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8888 {
		t.Errorf("Port with env override: got %d, want 8888", cfg.Server.Port)
	}
}

func TestLoad_ValidationFailure_BadPort(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
port = 0
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.BindAddress != DefaultBindAddress {
		t.Errorf("BindAddress: got %q, want %q", cfg.Server.BindAddress, DefaultBindAddress)
	}
	if cfg.Upstream.BreakerEnabled != true {
		t.Error("BreakerEnabled: got false, want true")
	}
	if cfg.RequestLog.RetentionDays != DefaultRequestLogRetentionDays {
		t.Errorf("RetentionDays: got %d, want %d", cfg.RequestLog.RetentionDays, DefaultRequestLogRetentionDays)
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled: got true, want false")
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{BindAddress: "0.0.0.0", Port: 8080}
	if got, want := s.Addr(), "0.0.0.0:8080"; got != want {
		t.Errorf("Addr: got %q, want %q", got, want)
	}
}

func TestUpstreamConfig_TimeoutDurations(t *testing.T) {
	tests := []struct {
		timeout int
		wantSec int
	}{
		{0, DefaultConnectTimeout},  // default
		{-1, DefaultConnectTimeout}, // negative defaults
		{60, 60},
		{5, 5},
	}

	for _, tt := range tests {
		u := UpstreamConfig{ConnectTimeout: tt.timeout}
		got := u.ConnectTimeoutDuration().Seconds()
		if int(got) != tt.wantSec {
			t.Errorf("ConnectTimeoutDuration(%d): got %v, want %ds", tt.timeout, got, tt.wantSec)
		}
	}

	u := UpstreamConfig{HeaderTimeout: 0}
	if int(u.HeaderTimeoutDuration().Seconds()) != DefaultHeaderTimeout {
		t.Errorf("HeaderTimeoutDuration(0): got %v, want %ds", u.HeaderTimeoutDuration(), DefaultHeaderTimeout)
	}
}

func TestAdminSocketPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.DataDir = "/var/lib/routeman"

	if got, want := cfg.AdminSocketPath(), filepath.Join("/var/lib/routeman", "admin.sock"); got != want {
		t.Errorf("AdminSocketPath default: got %q, want %q", got, want)
	}

	cfg.Admin.SocketPath = "/run/routeman.sock"
	if got, want := cfg.AdminSocketPath(), "/run/routeman.sock"; got != want {
		t.Errorf("AdminSocketPath override: got %q, want %q", got, want)
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	// Reset to ensure clean state.
	loadedConfigFile.Store("")
	path := ConfigFilePath()
	if path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("UserHomeDir: %v", err)
	}

	if got, want := expandHome("~/data"), filepath.Join(home, "data"); got != want {
		t.Errorf("expandHome(~/data): got %q, want %q", got, want)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome(/abs/path): got %q, want unchanged", got)
	}
}
