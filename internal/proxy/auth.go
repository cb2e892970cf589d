package proxy

import (
	"net/http"
	"strings"

	"github.com/allaspectsdev/routeman/internal/registry"
)

// bearerToken extracts the token from an Authorization: Bearer header.
// Returns an empty string when the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

// authorize validates a client API key against the registry. Unknown and
// deactivated keys both fail with the same client-visible message so a
// caller cannot probe which keys exist. The key id is returned for logging.
func authorize(cache *registry.Cache, token string) (int64, *DispatchError) {
	if token == "" {
		return 0, dispatchErr(KindUnauthorized, "missing API key")
	}
	key, ok := cache.LookupAPIKey(token)
	if !ok || !key.Active {
		return 0, dispatchErr(KindUnauthorized, "invalid API key")
	}
	return key.ID, nil
}
