package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// latencyBuckets are the histogram bounds in seconds for request durations.
// LLM completions routinely run tens of seconds, so the tail is long.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Collector tracks live gateway metrics using atomic counters for lock-free,
// concurrent-safe updates. It provides an in-memory real-time view of
// dispatch throughput, failover activity, and admin channel usage.
type Collector struct {
	totalRequests     int64
	streamedResponses int64
	failoverAdvances  int64
	promptTokens      int64
	activeRequests    int64

	requests     *counterVec   // provider, outcome
	attempts     *counterVec   // provider, result
	latency      *histogramVec // provider, streamed
	circuitState *gaugeVec     // provider, url
	adminCmds    *counterVec   // command, status

	startTime time.Time
}

// Stats is a point-in-time snapshot of the collector's counters, suitable
// for JSON serialisation on the status endpoint.
type Stats struct {
	Uptime            string `json:"uptime"`
	TotalRequests     int64  `json:"total_requests"`
	ActiveRequests    int64  `json:"active_requests"`
	StreamedResponses int64  `json:"streamed_responses"`
	FailoverAdvances  int64  `json:"failover_advances"`
	PromptTokens      int64  `json:"prompt_tokens"`
}

// NewCollector creates a new Collector with all counters initialised to zero
// and the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		requests:     newCounterVec(),
		attempts:     newCounterVec(),
		latency:      newHistogramVec(latencyBuckets),
		circuitState: newGaugeVec(),
		adminCmds:    newCounterVec(),
		startTime:    time.Now(),
	}
}

// RecordRequest records a completed dispatch: its resolved provider (empty
// when dispatch failed before resolution), final outcome, wall-clock
// duration, and whether the response was streamed.
func (c *Collector) RecordRequest(provider, outcome string, duration time.Duration, streamed bool) {
	atomic.AddInt64(&c.totalRequests, 1)
	if streamed {
		atomic.AddInt64(&c.streamedResponses, 1)
	}

	c.requests.inc(map[string]string{"provider": provider, "outcome": outcome})

	streamedLabel := "false"
	if streamed {
		streamedLabel = "true"
	}
	c.latency.observe(map[string]string{"provider": provider, "streamed": streamedLabel}, duration.Seconds())
}

// RecordAttempt records the result of a single upstream attempt.
func (c *Collector) RecordAttempt(provider, result string) {
	c.attempts.inc(map[string]string{"provider": provider, "result": result})
}

// RecordFailover records an advance to the next backend URL.
func (c *Collector) RecordFailover() {
	atomic.AddInt64(&c.failoverAdvances, 1)
}

// RecordPromptTokens adds an estimated prompt token count.
func (c *Collector) RecordPromptTokens(n int) {
	atomic.AddInt64(&c.promptTokens, int64(n))
}

// RecordAdminCommand records an admin channel command and whether it
// succeeded.
func (c *Collector) RecordAdminCommand(command string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	c.adminCmds.inc(map[string]string{"command": command, "status": status})
}

// SetCircuitState records the circuit breaker state for a backend URL
// (0=closed, 1=open, 2=half-open).
func (c *Collector) SetCircuitState(provider, url string, state float64) {
	c.circuitState.set(map[string]string{"provider": provider, "url": url}, state)
}

// IncrementActive increments the active request counter. Call this when a
// request enters dispatch.
func (c *Collector) IncrementActive() {
	atomic.AddInt64(&c.activeRequests, 1)
}

// DecrementActive decrements the active request counter. Call this when a
// request leaves dispatch (regardless of success or failure).
func (c *Collector) DecrementActive() {
	atomic.AddInt64(&c.activeRequests, -1)
}

// Requests returns the per-provider request outcome counters.
func (c *Collector) Requests() *counterVec { return c.requests }

// Attempts returns the per-provider upstream attempt counters.
func (c *Collector) Attempts() *counterVec { return c.attempts }

// Latency returns the request duration histograms.
func (c *Collector) Latency() *histogramVec { return c.latency }

// CircuitState returns the per-URL circuit breaker state gauges.
func (c *Collector) CircuitState() *gaugeVec { return c.circuitState }

// AdminCommands returns the admin command counters.
func (c *Collector) AdminCommands() *counterVec { return c.adminCmds }

// Stats returns a point-in-time snapshot of the scalar metrics.
func (c *Collector) Stats() *Stats {
	return &Stats{
		Uptime:            formatDuration(time.Since(c.startTime)),
		TotalRequests:     atomic.LoadInt64(&c.totalRequests),
		ActiveRequests:    atomic.LoadInt64(&c.activeRequests),
		StreamedResponses: atomic.LoadInt64(&c.streamedResponses),
		FailoverAdvances:  atomic.LoadInt64(&c.failoverAdvances),
		PromptTokens:      atomic.LoadInt64(&c.promptTokens),
	}
}

// formatDuration produces a human-readable duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return formatWithUnits(days, "d", hours, "h", minutes, "m")
	}
	if hours > 0 {
		return formatWithUnits(hours, "h", minutes, "m", 0, "")
	}
	return formatWithUnits(minutes, "m", 0, "", 0, "")
}

// formatWithUnits builds a compact duration string from up to three components.
func formatWithUnits(v1 int, u1 string, v2 int, u2 string, v3 int, u3 string) string {
	s := ""
	if v1 > 0 {
		s += strconv.Itoa(v1) + u1
	}
	if v2 > 0 {
		if s != "" {
			s += " "
		}
		s += strconv.Itoa(v2) + u2
	}
	if v3 > 0 && u3 != "" {
		if s != "" {
			s += " "
		}
		s += strconv.Itoa(v3) + u3
	}
	if s == "" {
		return "0m"
	}
	return s
}
