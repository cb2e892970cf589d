package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/allaspectsdev/routeman/internal/metrics"
	"github.com/allaspectsdev/routeman/internal/registry"
	"github.com/allaspectsdev/routeman/internal/store"
	"github.com/allaspectsdev/routeman/internal/tokenizer"
	"github.com/allaspectsdev/routeman/internal/tracing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler is the externally-reachable API surface of the gateway. It
// authenticates the caller's API key against the registry, hands the
// request to the Dispatcher, and maps dispatch outcomes to HTTP results.
type Handler struct {
	dispatcher  *Dispatcher
	cache       *registry.Cache
	logger      zerolog.Logger
	collector   *metrics.Collector
	tokenizer   *tokenizer.Tokenizer
	store       *store.Store
	maxBodySize int64
	logRequests bool
	version     string
	startedAt   time.Time
}

// NewHandler creates a Handler. collector, tokenizer, and store may be nil,
// which disables metrics, prompt-token estimates, and the request log
// respectively. A maxBodySize of 0 means unlimited.
func NewHandler(
	dispatcher *Dispatcher,
	cache *registry.Cache,
	logger zerolog.Logger,
	collector *metrics.Collector,
	tok *tokenizer.Tokenizer,
	st *store.Store,
	maxBodySize int64,
	logRequests bool,
	version string,
) *Handler {
	return &Handler{
		dispatcher:  dispatcher,
		cache:       cache,
		logger:      logger,
		collector:   collector,
		tokenizer:   tok,
		store:       st,
		maxBodySize: maxBodySize,
		logRequests: logRequests,
		version:     version,
		startedAt:   time.Now(),
	}
}

// HandleChatCompletions serves POST /v1/chat/completions: authenticate,
// resolve, forward, relay.
func (h *Handler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	// Step 1: generate a request ID and set up the request logger.
	requestID := uuid.New().String()

	if h.collector != nil {
		h.collector.IncrementActive()
		defer h.collector.DecrementActive()
	}

	logger := h.logger.With().
		Str("request_id", requestID).
		Logger()

	// Step 2: authorize the client API key before any other work. A
	// rejected request leaves no durable trace beyond the log line.
	keyID, derr := authorize(h.cache, bearerToken(r))
	if derr != nil {
		logger.Warn().Str("remote", r.RemoteAddr).Msg("rejected unauthorized request")
		writeDispatchError(w, derr)
		return
	}
	logger = logger.With().Int64("key_id", keyID).Logger()

	// Step 3: read the body and extract the routing fields.
	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "body_too_large", "request body too large")
			return
		}
		logger.Error().Err(err).Msg("failed to read request body")
		writeJSONError(w, http.StatusBadRequest, "invalid_request_error", "bad_request", "failed to read request body")
		return
	}
	defer r.Body.Close()

	chatReq, err := parseChatRequest(body)
	if err != nil {
		logger.Warn().Err(err).Msg("rejected malformed request body")
		writeDispatchError(w, dispatchErrCause(err, KindBadRequest, "request body is not a valid chat completions object"))
		return
	}

	logger = logger.With().
		Str("model", chatReq.Model).
		Bool("stream", chatReq.Stream).
		Logger()
	tracing.SetRequestAttributes(ctx, requestID, chatReq.Model, chatReq.Stream)

	// Step 4: estimate prompt tokens from the message text. The estimate
	// is computed here but only counted once the request reaches the
	// failover loop; a request rejected during resolution leaves no
	// durable trace.
	promptTokens := 0
	if h.tokenizer != nil {
		var msgs []tokenizer.Message
		for _, m := range chatReq.Messages {
			msgs = append(msgs, tokenizer.Message{Role: m.Role, Content: m.Content})
		}
		promptTokens = h.tokenizer.CountMessages(chatReq.Model, msgs)
	}

	logger.Info().Msg("dispatching request")

	// Step 5: resolve and forward. On success the response, streamed or
	// not, has already been relayed to the client.
	out, derr := h.dispatcher.ResolveAndForward(ctx, w, chatReq.Model, body, logger)
	if derr != nil {
		logger.Warn().Err(derr).Msg("dispatch failed")
		if derr.Kind == KindAllBackendsUnavailable {
			// The request reached the failover loop, so it is accounted
			// like any other dispatch. Earlier failures are not.
			h.finishError(logger, requestID, startTime, chatReq.Model, chatReq.Stream, promptTokens, derr)
		}
		writeDispatchError(w, derr)
		return
	}

	// Step 6: account for the completed dispatch.
	outcome := "ok"
	switch {
	case out.RelayErr != nil:
		outcome = "relay_interrupted"
		logger.Warn().Err(out.RelayErr).Msg("relay interrupted mid-response")
	case out.StatusCode >= 400:
		outcome = "upstream_error"
	}

	duration := time.Since(startTime)
	tracing.SetResponseAttributes(ctx, out.StatusCode, promptTokens, out.Provider, outcome)
	if h.collector != nil {
		h.collector.RecordPromptTokens(promptTokens)
		h.collector.RecordRequest(out.Provider, outcome, duration, out.Streamed)
	}
	h.persistRequest(logger, &store.Request{
		RequestID:    requestID,
		CreatedAt:    startTime.UTC().Format(time.RFC3339),
		Model:        chatReq.Model,
		Provider:     out.Provider,
		BackendURL:   out.BackendURL,
		StatusCode:   out.StatusCode,
		Outcome:      outcome,
		DurationMs:   duration.Milliseconds(),
		PromptTokens: int64(promptTokens),
		Streamed:     out.Streamed,
	})

	logger.Info().
		Str("provider", out.Provider).
		Int("status", out.StatusCode).
		Int("attempts", out.Attempts).
		Dur("latency", duration).
		Int64("bytes_out", out.BytesOut).
		Msg("request completed")
}

// finishError accounts for a dispatch that entered the failover loop but
// exhausted it without any backend response being relayed.
func (h *Handler) finishError(logger zerolog.Logger, requestID string, startTime time.Time, model string, streamed bool, promptTokens int, derr *DispatchError) {
	duration := time.Since(startTime)
	outcome := derr.Kind.String()

	if h.collector != nil {
		h.collector.RecordPromptTokens(promptTokens)
		h.collector.RecordRequest("none", outcome, duration, streamed)
	}
	h.persistRequest(logger, &store.Request{
		RequestID:    requestID,
		CreatedAt:    startTime.UTC().Format(time.RFC3339),
		Model:        model,
		StatusCode:   derr.Kind.HTTPStatus(),
		Outcome:      outcome,
		DurationMs:   duration.Milliseconds(),
		PromptTokens: int64(promptTokens),
		Streamed:     streamed,
	})
}

// persistRequest appends a record to the request log. Store failures are
// logged, never surfaced to the client.
func (h *Handler) persistRequest(logger zerolog.Logger, rec *store.Request) {
	if h.store == nil || !h.logRequests {
		return
	}
	if err := h.store.InsertRequest(rec); err != nil {
		logger.Error().Err(err).Msg("failed to persist request record")
	}
}

// modelEntry is one row of the model listing response.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// HandleModels serves GET /v1/models: the currently mapped model names in
// OpenAI list form.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	models := h.cache.Models()

	data := make([]modelEntry, 0, len(models))
	for _, m := range models {
		data = append(data, modelEntry{
			ID:      m,
			Object:  "model",
			Created: h.startedAt.Unix(),
			OwnedBy: "routeman",
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}

// HandleHealth returns a simple JSON health check response.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// HandleRoot returns the service banner.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "routeman",
		"version": h.version,
	})
}

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	data, _ := json.Marshal(v)
	_, _ = w.Write(data)
}
