package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/routeman/internal/admin"
	"github.com/allaspectsdev/routeman/internal/config"
	"github.com/allaspectsdev/routeman/internal/metrics"
	"github.com/allaspectsdev/routeman/internal/proxy"
	"github.com/allaspectsdev/routeman/internal/registry"
	"github.com/allaspectsdev/routeman/internal/store"
	"github.com/allaspectsdev/routeman/internal/tokenizer"
	"github.com/allaspectsdev/routeman/internal/tracing"
	"github.com/allaspectsdev/routeman/internal/vault"
	"github.com/allaspectsdev/routeman/internal/version"
)

// Run is the main daemon orchestrator. It initialises all subsystems,
// starts the gateway and admin servers, and blocks until a shutdown signal
// is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	// Always log to file.
	logPath := filepath.Join(dataDir, "routeman.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	// If foreground, also write to stdout with console formatting.
	if foreground {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "routeman").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("routeman starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("routeman is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	// 3. Open store.
	dbPath := filepath.Join(dataDir, "routeman.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	log.Info().Str("db_path", dbPath).Msg("store opened")

	// 4. Prime the registry cache. The dispatch path reads only this
	// mirror; the store is consulted again only by admin commands.
	cache := registry.New()
	if err := cache.LoadFrom(st); err != nil {
		return fmt.Errorf("priming registry cache: %w", err)
	}

	log.Info().Int("models", len(cache.Models())).Msg("registry cache primed")

	// 5. Create metrics collector.
	collector := metrics.NewCollector()

	// 6. Write PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 7. Initialise tracing if enabled.
	var traceShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		shutdown, traceErr := tracing.Init(
			context.Background(),
			cfg.Tracing.ServiceName,
			version.Version,
			cfg.Tracing.Exporter,
			cfg.Tracing.Endpoint,
			cfg.Tracing.SampleRate,
			cfg.Tracing.Insecure,
		)
		if traceErr != nil {
			log.Warn().Err(traceErr).Msg("tracing init failed; continuing without tracing")
		} else {
			traceShutdown = shutdown
			log.Info().
				Str("exporter", cfg.Tracing.Exporter).
				Str("endpoint", cfg.Tracing.Endpoint).
				Msg("tracing initialised")
		}
	}

	// 8. Start config watcher.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				newLevel := parseLogLevel(newCfg.Server.LogLevel)
				zerolog.SetGlobalLevel(newLevel)
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 9. Start periodic request-log pruning.
	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	defer pruneCancel()
	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		runPruner(pruneCtx, st, cfg.RequestLog.RetentionDays)
	}()

	// 10. Wire up the dispatch stack.
	resolver, err := vault.NewResolver(vault.New(), 0, 0)
	if err != nil {
		return fmt.Errorf("creating secret resolver: %w", err)
	}

	upstreamClient := proxy.NewUpstreamClient(
		cfg.Upstream.ConnectTimeoutDuration(),
		cfg.Upstream.HeaderTimeoutDuration(),
		time.Duration(cfg.Upstream.IdleConnTimeout)*time.Second,
		cfg.Upstream.MaxIdleConns,
		cfg.Upstream.MaxIdleConnsPerHost,
	)

	var breakers *proxy.CircuitBreakerRegistry
	if cfg.Upstream.BreakerEnabled {
		breakers = proxy.NewCircuitBreakerRegistry(
			cfg.Upstream.BreakerThreshold,
			time.Duration(cfg.Upstream.BreakerResetSeconds)*time.Second,
			cfg.Upstream.BreakerHalfOpenMax,
		)
	}

	dispatcher := proxy.NewDispatcher(cache, resolver, upstreamClient, breakers, collector, log.Logger)
	tok := tokenizer.New()

	handler := proxy.NewHandler(
		dispatcher, cache, log.Logger, collector, tok, st,
		cfg.Server.MaxBodySize,
		cfg.RequestLog.Enabled,
		version.Version,
	)

	// 11. Start the gateway server.
	gatewayAddr := cfg.Server.Addr()
	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Server.IdleTimeout) * time.Second
	gateway := proxy.NewServer(handler, collector, gatewayAddr, readTimeout, writeTimeout, idleTimeout, cfg.Tracing.Enabled)

	errCh := make(chan error, 2)

	go func() {
		if cfg.Server.TLSEnabled {
			log.Info().Str("addr", gatewayAddr).Msg("gateway server starting (TLS)")
			if err := gateway.StartTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil {
				errCh <- err
			}
		} else {
			log.Info().Str("addr", gatewayAddr).Msg("gateway server starting")
			if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("gateway server: %w", err)
			}
		}
	}()

	// 12. Start the admin control channel.
	socketPath := cfg.AdminSocketPath()
	adminService := admin.NewService(st, cache, collector, log.Logger)
	adminServer := admin.NewServer(adminService, socketPath, log.Logger)
	if err := adminServer.Start(); err != nil {
		return fmt.Errorf("starting admin channel: %w", err)
	}

	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}

	log.Info().
		Str("gateway", fmt.Sprintf("%s://%s", scheme, gatewayAddr)).
		Str("admin_socket", socketPath).
		Bool("tls", cfg.Server.TLSEnabled).
		Msg("routeman is ready")

	if foreground {
		fmt.Printf("\n  routeman is running!\n")
		fmt.Printf("  Gateway:      %s://%s\n", scheme, gatewayAddr)
		fmt.Printf("  Admin socket: %s\n\n", socketPath)
	}

	// 13. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		adminShutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := adminServer.Shutdown(adminShutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("admin channel shutdown error")
		}
		return err
	}

	// 14. Graceful shutdown with 30-second timeout. The admin channel goes
	// first so no mutation lands while the gateway drains.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down...")

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin channel shutdown error")
	}
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway server shutdown error")
	}

	// 15. Clean up: stop background goroutines before closing the store.
	pruneCancel()
	<-prunerDone
	if traceShutdown != nil {
		if err := traceShutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("tracing shutdown error")
		}
	}
	st.Close()
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("routeman stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("routeman does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		// Stale PID file; clean it up.
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("routeman is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to routeman (PID %d)\n", pid)

	// Wait briefly for the process to exit.
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("routeman is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("routeman is running (PID %d)\n", pid)

	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s", scheme, cfg.Server.Addr())
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Printf("  Gateway:      %s (unreachable)\n", base)
		fmt.Printf("  Admin socket: %s\n", cfg.AdminSocketPath())
		return nil
	}
	resp.Body.Close()

	fmt.Printf("  Gateway:      %s (healthy)\n", base)
	fmt.Printf("  Admin socket: %s\n", cfg.AdminSocketPath())

	// Report how many models are currently mapped.
	modelsResp, err := client.Get(base + "/v1/models")
	if err == nil {
		defer modelsResp.Body.Close()
		body, readErr := io.ReadAll(modelsResp.Body)
		if readErr == nil {
			var list struct {
				Data []json.RawMessage `json:"data"`
			}
			if json.Unmarshal(body, &list) == nil {
				fmt.Printf("  Models:       %d mapped\n", len(list.Data))
			}
		}
	}

	return nil
}

// runPruner periodically prunes old request-log rows from the store.
func runPruner(ctx context.Context, st *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("request log pruner: recovered from panic")
					}
				}()
				n, err := st.Prune(retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("request log pruning failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned request log")
				}
			}()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
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
