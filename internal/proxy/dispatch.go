package proxy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/allaspectsdev/routeman/internal/metrics"
	"github.com/allaspectsdev/routeman/internal/registry"
	"github.com/allaspectsdev/routeman/internal/tracing"
	"github.com/allaspectsdev/routeman/internal/vault"
	"github.com/rs/zerolog"
)

// Dispatcher resolves a model name to a provider's credential and ordered
// backend URLs, then delivers the request with ordered failover. All
// lookups go through the registry cache; the dispatcher never touches the
// store on the request path.
type Dispatcher struct {
	cache     *registry.Cache
	resolver  *vault.Resolver
	client    *UpstreamClient
	breakers  *CircuitBreakerRegistry
	collector *metrics.Collector
	logger    zerolog.Logger
}

// NewDispatcher creates a Dispatcher. resolver, breakers, and collector may
// be nil, which disables key-reference resolution, circuit breaking, and
// metrics respectively.
func NewDispatcher(
	cache *registry.Cache,
	resolver *vault.Resolver,
	client *UpstreamClient,
	breakers *CircuitBreakerRegistry,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		cache:     cache,
		resolver:  resolver,
		client:    client,
		breakers:  breakers,
		collector: collector,
		logger:    logger,
	}
}

// route is a resolution snapshot pinned for the lifetime of one request.
// The URL slice comes straight from the registry cache, which publishes
// whole replacement slices and never mutates one in place, so concurrent
// admin updates cannot change an in-flight dispatch.
type route struct {
	provider   string
	credential string
	urls       []string
}

// Outcome describes a dispatch that reached a backend and relayed its
// response. RelayErr is set when the relay broke after output had started;
// by then the response is final and nothing more can be sent to the client.
type Outcome struct {
	Provider   string
	BackendURL string
	StatusCode int
	Streamed   bool
	BytesOut   int64
	Attempts   int
	RelayErr   error
}

// isFailoverStatus reports whether a backend response counts as a failed
// delivery attempt. Any 5xx advances the failover loop: nothing has been
// relayed yet, so the response can be discarded. A 4xx, including 429, is
// the backend answering the request and is relayed as-is.
func isFailoverStatus(statusCode int) bool {
	return statusCode >= 500
}

// ResolveAndForward resolves the model against the current registry state
// and forwards the request body to the first usable backend, relaying the
// response to w. Resolution happens exactly once; URL attempts run in
// registry order, a URL is never retried, and an attempt whose response has
// been accepted is final. On failure before any backend accepts, a
// DispatchError is returned and nothing has been written to w.
func (d *Dispatcher) ResolveAndForward(ctx context.Context, w http.ResponseWriter, model string, body []byte, logger zerolog.Logger) (*Outcome, *DispatchError) {
	ctx, span := tracing.StartDispatchSpan(ctx, model)
	defer span.End()

	rt, derr := d.resolveRoute(model)
	if derr != nil {
		tracing.RecordError(ctx, derr)
		return nil, derr
	}

	logger = logger.With().Str("provider", rt.provider).Logger()

	var lastErr error
	attempts := 0
	for i, backendURL := range rt.urls {
		if i > 0 {
			if d.collector != nil {
				d.collector.RecordFailover()
			}
			logger.Info().Int("backend_index", i).Msg("failing over to next backend")
		}

		// A URL considered is a delivery attempt, whether or not a
		// connection is made; a breaker skip advances like any failure.
		attempts++

		var cb *CircuitBreaker
		if d.breakers != nil {
			cb = d.breakers.Get(backendURL)
			if !cb.Allow() {
				logger.Debug().Str("backend_url", backendURL).Msg("circuit open, skipping backend")
				d.recordAttempt(rt.provider, "breaker_open")
				d.publishBreakerState(rt.provider, backendURL, cb)
				lastErr = fmt.Errorf("circuit open for %s", backendURL)
				continue
			}
		}
		resp, err := d.client.Forward(ctx, rt.provider, backendURL, rt.credential, attempts, body)
		if err != nil {
			lastErr = err
			d.recordAttempt(rt.provider, "connection_error")
			if cb != nil {
				cb.RecordFailure()
				d.publishBreakerState(rt.provider, backendURL, cb)
			}
			logger.Warn().Err(err).Int("attempt", attempts).Msg("backend attempt failed")
			if ctx.Err() != nil {
				// The client is gone or the server is shutting down;
				// trying further backends would answer no one.
				return nil, dispatchErrCause(ctx.Err(), KindAllBackendsUnavailable, "request canceled before a backend responded")
			}
			continue
		}

		if isFailoverStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("backend returned status %d", resp.StatusCode)
			d.recordAttempt(rt.provider, "upstream_5xx")
			if cb != nil {
				cb.RecordFailure()
				d.publishBreakerState(rt.provider, backendURL, cb)
			}
			logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempts).Msg("backend returned server error")
			_ = resp.Body.Close()
			continue
		}

		// The backend has begun producing a response. From here the
		// outcome is final: relay it whatever it contains.
		d.recordAttempt(rt.provider, "ok")
		if cb != nil {
			cb.RecordSuccess()
			d.publishBreakerState(rt.provider, backendURL, cb)
		}

		streamed := isEventStream(resp)
		written, relayErr := relayResponse(ctx, w, resp)
		_ = resp.Body.Close()

		return &Outcome{
			Provider:   rt.provider,
			BackendURL: backendURL,
			StatusCode: resp.StatusCode,
			Streamed:   streamed,
			BytesOut:   written,
			Attempts:   attempts,
			RelayErr:   relayErr,
		}, nil
	}

	derr = dispatchErrCause(lastErr, KindAllBackendsUnavailable, "all backends failed for model %q", model)
	tracing.RecordError(ctx, derr)
	return nil, derr
}

// resolveRoute performs the registry lookups for a model in contract order:
// mapping, credential, backend URLs. Each absence maps to its own error
// kind so client mistakes (unknown model) and operator mistakes (missing
// credential or backends) stay distinguishable.
func (d *Dispatcher) resolveRoute(model string) (*route, *DispatchError) {
	provider, ok := d.cache.Provider(model)
	if !ok {
		return nil, dispatchErr(KindUnknownModel, "model %q is not mapped to a provider", model)
	}

	secret, ok := d.cache.Credential(provider)
	if !ok {
		return nil, dispatchErr(KindMisconfiguredProvider, "no credential configured for the provider of model %q", model)
	}
	if d.resolver != nil {
		resolved, err := d.resolver.Resolve(secret)
		if err != nil {
			return nil, dispatchErrCause(err, KindMisconfiguredProvider, "credential for the provider of model %q cannot be resolved", model)
		}
		secret = resolved
	}

	urls, ok := d.cache.BackendURLs(provider)
	if !ok || len(urls) == 0 {
		return nil, dispatchErr(KindNoBackendConfigured, "no backend configured for model %q", model)
	}

	return &route{provider: provider, credential: secret, urls: urls}, nil
}

func (d *Dispatcher) recordAttempt(provider, result string) {
	if d.collector != nil {
		d.collector.RecordAttempt(provider, result)
	}
}

func (d *Dispatcher) publishBreakerState(provider, backendURL string, cb *CircuitBreaker) {
	if d.collector != nil {
		d.collector.SetCircuitState(provider, backendURL, float64(cb.State()))
	}
}
