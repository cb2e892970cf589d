package admin

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/routeman/internal/metrics"
	"github.com/allaspectsdev/routeman/internal/registry"
	"github.com/allaspectsdev/routeman/internal/store"
	"github.com/allaspectsdev/routeman/internal/tracing"
)

// Service validates and applies admin commands. Each mutation follows the
// same contract: validate (no store access), commit to the store, publish
// to the registry cache, respond. A store failure aborts before the cache
// is touched, so the cache never gets ahead of durable state.
//
// One mutex per record kind serializes commit+publish, so no command can
// observe another's store write without its cache write. Commands on
// distinct kinds proceed concurrently.
type Service struct {
	store     *store.Store
	cache     *registry.Cache
	collector *metrics.Collector
	logger    zerolog.Logger

	credMu    sync.Mutex
	keyMu     sync.Mutex
	backendMu sync.Mutex
	mapMu     sync.Mutex
}

// NewService creates a Service. collector may be nil, which disables
// command metrics.
func NewService(st *store.Store, cache *registry.Cache, collector *metrics.Collector, logger zerolog.Logger) *Service {
	return &Service{
		store:     st,
		cache:     cache,
		collector: collector,
		logger:    logger.With().Str("component", "admin").Logger(),
	}
}

// Execute runs one command and returns its response envelope. Errors are
// returned in the envelope, never as a Go error: the channel answers every
// well-formed request.
func (s *Service) Execute(ctx context.Context, req *Request) *Response {
	_, span := tracing.StartAdminSpan(ctx, string(req.Command))
	defer span.End()

	resp := s.dispatch(req)

	if s.collector != nil {
		s.collector.RecordAdminCommand(string(req.Command), resp.Status == "ok")
	}

	evt := s.logger.Info()
	if resp.Status != "ok" {
		evt = s.logger.Warn().Str("code", resp.Code).Str("error", resp.Error)
	}
	evt.Str("command", string(req.Command)).Str("status", resp.Status).Msg("admin command")

	return resp
}

func (s *Service) dispatch(req *Request) *Response {
	switch req.Command {
	case CmdAddAdminAuth:
		return s.addAdminAuth(req)
	case CmdRemoveAdminAuth:
		return s.removeAdminAuth(req)
	case CmdListAdminAuth:
		return s.listAdminAuth()
	case CmdGetAdminAuth:
		return s.getAdminAuth(req)
	case CmdAddUserAPIKey:
		return s.addUserAPIKey(req)
	case CmdRemoveUserAPIKey:
		return s.removeUserAPIKey(req)
	case CmdListUserAPIKeys:
		return s.listUserAPIKeys()
	case CmdGetUserAPIKey:
		return s.getUserAPIKey(req)
	case CmdActivateUserAPIKey:
		return s.setUserAPIKeyActive(req, true)
	case CmdDeactivateUserAPIKey:
		return s.setUserAPIKeyActive(req, false)
	case CmdAddBackend:
		return s.addBackend(req)
	case CmdRemoveBackend:
		return s.removeBackend(req)
	case CmdListBackends:
		return s.listBackends()
	case CmdGetBackend:
		return s.getBackend(req)
	case CmdAddModelMapping:
		return s.addModelMapping(req)
	case CmdRemoveModelMapping:
		return s.removeModelMapping(req)
	case CmdListModelMappings:
		return s.listModelMappings()
	case CmdGetModelMapping:
		return s.getModelMapping(req)
	default:
		return fail(CodeBadRequest, "unknown command: %s", req.Command)
	}
}

// --- Admin credentials ---

func (s *Service) addAdminAuth(req *Request) *Response {
	if req.Name == "" {
		return fail(CodeBadRequest, "add_admin_auth requires a name")
	}
	if req.Credentials == "" {
		return fail(CodeBadRequest, "add_admin_auth requires credentials")
	}

	s.credMu.Lock()
	defer s.credMu.Unlock()

	// Overwrite semantics: a colliding name replaces the stored secret.
	if err := s.store.PutCredential(req.Name, req.Credentials); err != nil {
		return storeFail(err)
	}
	s.cache.SetCredential(req.Name, req.Credentials)

	return ok()
}

func (s *Service) removeAdminAuth(req *Request) *Response {
	if req.Name == "" {
		return fail(CodeBadRequest, "remove_admin_auth requires a name")
	}

	s.credMu.Lock()
	defer s.credMu.Unlock()

	if err := s.store.DeleteCredential(req.Name); err != nil {
		return storeFail(err)
	}
	s.cache.RemoveCredential(req.Name)

	return ok()
}

func (s *Service) listAdminAuth() *Response {
	creds, err := s.store.ListCredentials()
	if err != nil {
		return storeFail(err)
	}

	names := make([]string, 0, len(creds))
	for _, c := range creds {
		names = append(names, c.Provider)
	}
	sort.Strings(names)

	resp := ok()
	resp.AuthNames = names
	return resp
}

func (s *Service) getAdminAuth(req *Request) *Response {
	if req.Name == "" {
		return fail(CodeBadRequest, "get_admin_auth requires a name")
	}

	if _, err := s.store.GetCredential(req.Name); err != nil {
		return storeFail(err)
	}

	resp := ok()
	resp.Name = req.Name
	resp.Credentials = redactedSecret
	return resp
}

// --- User API keys ---

func (s *Service) addUserAPIKey(req *Request) *Response {
	if req.APIKey == "" {
		return fail(CodeBadRequest, "add_user_api_key requires an api_key")
	}

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	rec, err := s.store.CreateAPIKey(req.APIKey, req.Description)
	if err != nil {
		return storeFail(err)
	}
	s.cache.PutAPIKey(*rec)

	resp := ok()
	resp.ID = rec.ID
	return resp
}

func (s *Service) removeUserAPIKey(req *Request) *Response {
	if req.APIKey == "" {
		return fail(CodeBadRequest, "remove_user_api_key requires an api_key")
	}

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if err := s.store.DeleteAPIKey(req.APIKey); err != nil {
		return storeFail(err)
	}
	s.cache.RemoveAPIKey(req.APIKey)

	return ok()
}

func (s *Service) listUserAPIKeys() *Response {
	recs, err := s.store.ListAPIKeys()
	if err != nil {
		return storeFail(err)
	}

	keys := make([]KeyInfo, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, keyInfo(r))
	}

	resp := ok()
	resp.Keys = keys
	return resp
}

func (s *Service) getUserAPIKey(req *Request) *Response {
	if req.ID <= 0 {
		return fail(CodeBadRequest, "get_user_api_key requires a positive id")
	}

	rec, err := s.store.GetAPIKey(req.ID)
	if err != nil {
		return storeFail(err)
	}

	info := keyInfo(rec)
	resp := ok()
	resp.Key = &info
	return resp
}

func (s *Service) setUserAPIKeyActive(req *Request, active bool) *Response {
	if req.ID <= 0 {
		return fail(CodeBadRequest, "%s requires a positive id", req.Command)
	}

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if err := s.store.SetAPIKeyActive(req.ID, active); err != nil {
		return storeFail(err)
	}
	s.cache.SetAPIKeyActive(req.ID, active)

	return ok()
}

// --- Backends ---

func (s *Service) addBackend(req *Request) *Response {
	if req.Provider == "" {
		return fail(CodeBadRequest, "add_backend requires a provider")
	}
	if resp := validateBackendURL(req.URL); resp != nil {
		return resp
	}

	s.backendMu.Lock()
	defer s.backendMu.Unlock()

	// Duplicate (provider, url) pairs are a no-op, not an error; re-running
	// a provisioning script must not change attempt order.
	if _, err := s.store.AddBackendURL(req.Provider, req.URL); err != nil {
		return storeFail(err)
	}
	return s.publishBackends(req.Provider)
}

func (s *Service) removeBackend(req *Request) *Response {
	if req.Provider == "" {
		return fail(CodeBadRequest, "remove_backend requires a provider")
	}
	if req.URL == "" {
		return fail(CodeBadRequest, "remove_backend requires a url")
	}

	s.backendMu.Lock()
	defer s.backendMu.Unlock()

	if err := s.store.RemoveBackendURL(req.Provider, req.URL); err != nil {
		return storeFail(err)
	}
	return s.publishBackends(req.Provider)
}

// publishBackends re-reads the provider's URL list and publishes it whole.
// Removing the last URL removes the provider from the cache entirely.
// Caller holds backendMu.
func (s *Service) publishBackends(provider string) *Response {
	urls, err := s.store.GetBackendURLs(provider)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeFail(err)
	}

	if len(urls) == 0 {
		s.cache.RemoveBackendProvider(provider)
	} else {
		s.cache.SetBackendURLs(provider, urls)
	}

	return ok()
}

func (s *Service) listBackends() *Response {
	backends, err := s.store.ListBackends()
	if err != nil {
		return storeFail(err)
	}

	resp := ok()
	resp.Backends = backends
	return resp
}

func (s *Service) getBackend(req *Request) *Response {
	if req.Provider == "" {
		return fail(CodeBadRequest, "get_backend requires a provider")
	}

	urls, err := s.store.GetBackendURLs(req.Provider)
	if err != nil {
		return storeFail(err)
	}

	resp := ok()
	resp.Provider = req.Provider
	resp.URLs = urls
	return resp
}

// --- Model mappings ---

func (s *Service) addModelMapping(req *Request) *Response {
	if req.ModelName == "" {
		return fail(CodeBadRequest, "add_model_mapping requires a model_name")
	}
	if req.Provider == "" {
		return fail(CodeBadRequest, "add_model_mapping requires a provider")
	}

	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	// Overwrite semantics: remapping a model replaces its provider.
	if err := s.store.PutMapping(req.ModelName, req.Provider); err != nil {
		return storeFail(err)
	}
	s.cache.SetMapping(req.ModelName, req.Provider)

	return ok()
}

func (s *Service) removeModelMapping(req *Request) *Response {
	if req.ModelName == "" {
		return fail(CodeBadRequest, "remove_model_mapping requires a model_name")
	}

	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	if err := s.store.DeleteMapping(req.ModelName); err != nil {
		return storeFail(err)
	}
	s.cache.RemoveMapping(req.ModelName)

	return ok()
}

func (s *Service) listModelMappings() *Response {
	mappings, err := s.store.ListMappings()
	if err != nil {
		return storeFail(err)
	}

	m := make(map[string]string, len(mappings))
	for _, rec := range mappings {
		m[rec.Model] = rec.Provider
	}

	resp := ok()
	resp.Mappings = m
	return resp
}

func (s *Service) getModelMapping(req *Request) *Response {
	if req.ModelName == "" {
		return fail(CodeBadRequest, "get_model_mapping requires a model_name")
	}

	rec, err := s.store.GetMapping(req.ModelName)
	if err != nil {
		return storeFail(err)
	}

	resp := ok()
	resp.ModelName = rec.Model
	resp.Provider = rec.Provider
	return resp
}

// --- Helpers ---

// storeFail maps a store error onto the response taxonomy: absent keys are
// not_found, unique collisions are conflict, anything else is the store
// itself failing.
func storeFail(err error) *Response {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(CodeNotFound, "%s", err)
	case errors.Is(err, store.ErrConflict):
		return fail(CodeConflict, "%s", err)
	default:
		return fail(CodeStorageError, "%s", err)
	}
}

// validateBackendURL rejects URLs the upstream client could not dial.
func validateBackendURL(raw string) *Response {
	if raw == "" {
		return fail(CodeBadRequest, "add_backend requires a url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fail(CodeBadRequest, "backend url %q must be absolute with scheme and host", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail(CodeBadRequest, "backend url scheme %q must be http or https", u.Scheme)
	}
	return nil
}

func keyInfo(r *store.APIKey) KeyInfo {
	return KeyInfo{
		ID:          r.ID,
		APIKey:      redactedSecret,
		Description: r.Description,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}
