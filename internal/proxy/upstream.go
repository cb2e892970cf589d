package proxy

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/allaspectsdev/routeman/internal/tracing"
)

// Default upstream connection parameters, used when the corresponding
// constructor argument is zero.
const (
	defaultConnectTimeout  = 10 * time.Second
	defaultHeaderTimeout   = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
	defaultMaxIdleConns    = 100
	defaultMaxIdlePerHost  = 10
)

// UpstreamClient forwards requests to backend provider URLs over a shared
// pooled transport. The client carries no overall timeout: streamed
// responses stay open indefinitely and are bounded only by the caller's
// context. Each connection attempt is bounded by the dial timeout and the
// response header timeout, so an unreachable backend fails fast enough for
// the failover loop to move on.
type UpstreamClient struct {
	client *http.Client
}

// NewUpstreamClient creates an UpstreamClient. Zero-value arguments fall
// back to the package defaults.
func NewUpstreamClient(connectTimeout, headerTimeout, idleConnTimeout time.Duration, maxIdleConns, maxIdlePerHost int) *UpstreamClient {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	if headerTimeout <= 0 {
		headerTimeout = defaultHeaderTimeout
	}
	if idleConnTimeout <= 0 {
		idleConnTimeout = defaultIdleConnTimeout
	}
	if maxIdleConns <= 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdlePerHost
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}

	return &UpstreamClient{
		client: &http.Client{
			Transport: transport,
		},
	}
}

// Forward sends one delivery attempt to a backend URL with the provider's
// credential attached as the outbound authorization. The request body is
// the client's original payload, forwarded unmodified. The caller is
// responsible for closing the response body.
func (u *UpstreamClient) Forward(ctx context.Context, provider, baseURL, credential string, attempt int, body []byte) (*http.Response, error) {
	// Backend base URLs carry their version segment; only the operation
	// path is appended.
	upstreamURL := strings.TrimSuffix(baseURL, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)

	// Inject trace context (traceparent / tracestate) into the upstream request.
	tracing.InjectHeaders(ctx, httpReq)

	ctx, span := tracing.StartUpstreamSpan(ctx, provider, upstreamURL, attempt)
	defer span.End()

	resp, err := u.client.Do(httpReq.WithContext(ctx))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("forwarding to %s: %w", upstreamURL, err)
	}

	return resp, nil
}
