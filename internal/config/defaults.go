package config

// DefaultBindAddress is the default bind address (localhost only for security).
const DefaultBindAddress = "127.0.0.1"

// DefaultPort is the default port for the gateway server.
const DefaultPort = 7680

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.routeman"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "routeman.toml"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// Set high (5 minutes) to accommodate streamed completions.
const DefaultWriteTimeout = 300

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (10 MB).
const DefaultMaxBodySize = 10 << 20

// DefaultConnectTimeout is the default backend dial timeout in seconds.
const DefaultConnectTimeout = 10

// DefaultHeaderTimeout is the default wait for backend response headers in
// seconds. This bounds each failover attempt.
const DefaultHeaderTimeout = 30

// DefaultMaxIdleConns is the default connection pool size across all backends.
const DefaultMaxIdleConns = 100

// DefaultMaxIdleConnsPerHost is the default connection pool size per backend.
const DefaultMaxIdleConnsPerHost = 10

// DefaultIdleConnTimeout is the default idle connection lifetime in seconds.
const DefaultIdleConnTimeout = 90

// DefaultBreakerThreshold is the default number of consecutive failures before opening a URL's circuit.
const DefaultBreakerThreshold = 5

// DefaultBreakerResetSeconds is the default circuit breaker reset timeout in seconds.
const DefaultBreakerResetSeconds = 30

// DefaultBreakerHalfOpenMax is the default number of successful calls in half-open state to close the circuit.
const DefaultBreakerHalfOpenMax = 1

// DefaultRequestLogRetentionDays is the default request log retention in days.
const DefaultRequestLogRetentionDays = 30

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "routeman"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidTracingExporters lists the allowed tracing exporter values.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  DefaultBindAddress,
			Port:         DefaultPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			TLSEnabled:   false,
			CertFile:     "",
			KeyFile:      "",
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Admin: AdminConfig{
			SocketPath: "",
		},
		Upstream: UpstreamConfig{
			ConnectTimeout:      DefaultConnectTimeout,
			HeaderTimeout:       DefaultHeaderTimeout,
			MaxIdleConns:        DefaultMaxIdleConns,
			MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
			BreakerEnabled:      true,
			BreakerThreshold:    DefaultBreakerThreshold,
			BreakerResetSeconds: DefaultBreakerResetSeconds,
			BreakerHalfOpenMax:  DefaultBreakerHalfOpenMax,
		},
		RequestLog: RequestLogConfig{
			Enabled:       true,
			RetentionDays: DefaultRequestLogRetentionDays,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
	}
}
