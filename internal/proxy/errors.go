package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorKind classifies a dispatch failure. Each kind maps to exactly one
// HTTP status and OpenAI error type so the gateway reports failures
// consistently without leaking backend URLs or credentials.
type ErrorKind int

const (
	// KindBadRequest means the request body could not be parsed or is
	// missing required fields.
	KindBadRequest ErrorKind = iota
	// KindUnauthorized means the client API key is absent, unknown, or
	// deactivated.
	KindUnauthorized
	// KindUnknownModel means no model mapping exists for the requested model.
	KindUnknownModel
	// KindMisconfiguredProvider means a mapping exists but the provider has
	// no stored credential. An operator error, not a client error.
	KindMisconfiguredProvider
	// KindNoBackendConfigured means the provider has no backend URLs.
	KindNoBackendConfigured
	// KindAllBackendsUnavailable means every backend URL was attempted and
	// none produced a usable response.
	KindAllBackendsUnavailable
)

// String returns the stable wire identifier for the kind, used as the
// OpenAI-style error code and in logs and the request log.
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnknownModel:
		return "unknown_model"
	case KindMisconfiguredProvider:
		return "misconfigured_provider"
	case KindNoBackendConfigured:
		return "no_backend_configured"
	case KindAllBackendsUnavailable:
		return "all_backends_unavailable"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the HTTP status the gateway reports for the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnknownModel:
		return http.StatusNotFound
	case KindMisconfiguredProvider:
		return http.StatusBadGateway
	case KindNoBackendConfigured:
		return http.StatusServiceUnavailable
	case KindAllBackendsUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorType returns the OpenAI-style error type string for the kind.
func (k ErrorKind) errorType() string {
	switch k {
	case KindBadRequest:
		return "invalid_request_error"
	case KindUnauthorized:
		return "authentication_error"
	case KindUnknownModel:
		return "invalid_request_error"
	default:
		return "gateway_error"
	}
}

// DispatchError is a classified failure from the dispatch path. The Message
// is client-safe; anything sensitive belongs in the wrapped cause, which is
// logged but never written to the response.
type DispatchError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *DispatchError) Unwrap() error {
	return e.cause
}

// dispatchErr constructs a DispatchError with a client-safe message.
func dispatchErr(kind ErrorKind, format string, args ...interface{}) *DispatchError {
	return &DispatchError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// dispatchErrCause is dispatchErr with an underlying cause attached for logs.
func dispatchErrCause(cause error, kind ErrorKind, format string, args ...interface{}) *DispatchError {
	return &DispatchError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// writeDispatchError writes a DispatchError as an OpenAI-style JSON error
// body with the kind's HTTP status.
func writeDispatchError(w http.ResponseWriter, derr *DispatchError) {
	writeJSONError(w, derr.Kind.HTTPStatus(), derr.Kind.errorType(), derr.Kind.String(), derr.Message)
}

// writeJSONError writes an OpenAI-style error response:
// {"error":{"message":...,"type":...,"code":...}}.
func writeJSONError(w http.ResponseWriter, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	}
	data, _ := json.Marshal(resp)
	_, _ = w.Write(data)
}
