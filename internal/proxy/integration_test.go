package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/routeman/internal/metrics"
	"github.com/allaspectsdev/routeman/internal/registry"
	"github.com/allaspectsdev/routeman/internal/store"
	"github.com/allaspectsdev/routeman/internal/tokenizer"
)

// setupIntegration builds the full gateway stack: SQLite store, registry
// cache loaded from it, dispatcher, handler, and router. Registry records
// are written through the store and published to the cache the way the
// admin service does, then the stack serves real HTTP requests.
func setupIntegration(t *testing.T, seed func(t *testing.T, st *store.Store)) (*httptest.Server, *store.Store, *registry.Cache) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "routeman.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if seed != nil {
		seed(t, st)
	}

	cache := registry.New()
	if err := cache.LoadFrom(st); err != nil {
		t.Fatalf("loading cache: %v", err)
	}

	client := NewUpstreamClient(2*time.Second, 2*time.Second, 0, 0, 0)
	collector := metrics.NewCollector()
	dispatcher := NewDispatcher(cache, nil, client, NewCircuitBreakerRegistry(5, time.Minute, 1), collector, zerolog.Nop())
	handler := NewHandler(dispatcher, cache, zerolog.Nop(), collector, tokenizer.New(), st, 1<<20, true, "test")

	srv := NewServer(handler, collector, ":0", 0, 0, 0, false)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return ts, st, cache
}

func TestIntegration_RegisteredRouteServesRequest(t *testing.T) {
	var gotAuth string
	upstream := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-int","object":"chat.completion"}`)
	})
	defer upstream.Close()

	ts, _, _ := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if err := st.PutMapping("gpt-test", "alpha"); err != nil {
			t.Fatalf("putting mapping: %v", err)
		}
		if _, err := st.AddBackendURL("alpha", upstream.URL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if err := st.PutCredential("alpha", "sk-live"); err != nil {
			t.Fatalf("putting credential: %v", err)
		}
		if _, err := st.CreateAPIKey("rk-user", "integration"); err != nil {
			t.Fatalf("creating API key: %v", err)
		}
	})

	resp := postChat(t, ts, "rk-user", `{"model":"gpt-test","messages":[{"role":"user","content":"hello"}]}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d; want %d; body = %s", resp.StatusCode, http.StatusOK, body)
	}
	if gotAuth != "Bearer sk-live" {
		t.Errorf("upstream auth = %q; want the stored provider credential", gotAuth)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != `{"id":"cmpl-int","object":"chat.completion"}` {
		t.Errorf("body = %s; want upstream body relayed verbatim", body)
	}
}

func TestIntegration_FailoverUsesInsertionOrder(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	live := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-failover"}`)
	})
	defer live.Close()

	ts, _, _ := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if err := st.PutMapping("gpt-test", "alpha"); err != nil {
			t.Fatalf("putting mapping: %v", err)
		}
		// Dead URL first: registration order is attempt order.
		if _, err := st.AddBackendURL("alpha", deadURL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if _, err := st.AddBackendURL("alpha", live.URL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if err := st.PutCredential("alpha", "sk-live"); err != nil {
			t.Fatalf("putting credential: %v", err)
		}
		if _, err := st.CreateAPIKey("rk-user", ""); err != nil {
			t.Fatalf("creating API key: %v", err)
		}
	})

	resp := postChat(t, ts, "rk-user", `{"model":"gpt-test"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d after failover", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"id":"cmpl-failover"}` {
		t.Errorf("body = %s; want the fallback backend's response", body)
	}
}

func TestIntegration_StreamingEndToEnd(t *testing.T) {
	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
		"data: [DONE]\n\n",
	}
	upstream := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			io.WriteString(w, chunk)
			flusher.Flush()
		}
	})
	defer upstream.Close()

	ts, _, _ := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if err := st.PutMapping("gpt-test", "alpha"); err != nil {
			t.Fatalf("putting mapping: %v", err)
		}
		if _, err := st.AddBackendURL("alpha", upstream.URL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if err := st.PutCredential("alpha", "sk-live"); err != nil {
			t.Fatalf("putting credential: %v", err)
		}
		if _, err := st.CreateAPIKey("rk-user", ""); err != nil {
			t.Fatalf("creating API key: %v", err)
		}
	})

	resp := postChat(t, ts, "rk-user", `{"model":"gpt-test","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q; want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	var got strings.Builder
	for {
		line, err := reader.ReadString('\n')
		got.WriteString(line)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
	}
	if got.String() != strings.Join(chunks, "") {
		t.Errorf("stream = %q; want all chunks relayed in order", got.String())
	}
}

func TestIntegration_CachePublishVisibleToNextRequest(t *testing.T) {
	upstream := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-pub"}`)
	})
	defer upstream.Close()

	ts, st, cache := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if err := st.PutCredential("alpha", "sk-live"); err != nil {
			t.Fatalf("putting credential: %v", err)
		}
		if _, err := st.AddBackendURL("alpha", upstream.URL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if _, err := st.CreateAPIKey("rk-user", ""); err != nil {
			t.Fatalf("creating API key: %v", err)
		}
	})

	// No mapping yet: the model is unknown.
	resp := postChat(t, ts, "rk-user", `{"model":"gpt-new"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("before mapping: status = %d; want %d", resp.StatusCode, http.StatusNotFound)
	}

	// Write-then-publish, the way the admin service commits a change.
	if err := st.PutMapping("gpt-new", "alpha"); err != nil {
		t.Fatalf("putting mapping: %v", err)
	}
	cache.SetMapping("gpt-new", "alpha")

	resp = postChat(t, ts, "rk-user", `{"model":"gpt-new"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("after mapping: status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestIntegration_DeactivateThenReactivateKey(t *testing.T) {
	upstream := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-toggle"}`)
	})
	defer upstream.Close()

	var keyID int64
	ts, st, cache := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if err := st.PutCredential("alpha", "sk-live"); err != nil {
			t.Fatalf("putting credential: %v", err)
		}
		if _, err := st.AddBackendURL("alpha", upstream.URL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if err := st.PutMapping("gpt-test", "alpha"); err != nil {
			t.Fatalf("putting mapping: %v", err)
		}
		k, err := st.CreateAPIKey("rk-user", "")
		if err != nil {
			t.Fatalf("creating API key: %v", err)
		}
		keyID = k.ID
	})

	resp := postChat(t, ts, "rk-user", `{"model":"gpt-test"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("active key: status = %d; want %d", resp.StatusCode, http.StatusOK)
	}

	// Deactivate: commit then publish, the same order the admin service uses.
	if err := st.SetAPIKeyActive(keyID, false); err != nil {
		t.Fatalf("deactivating key: %v", err)
	}
	cache.SetAPIKeyActive(keyID, false)

	resp = postChat(t, ts, "rk-user", `{"model":"gpt-test"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deactivated key: status = %d; want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	if err := st.SetAPIKeyActive(keyID, true); err != nil {
		t.Fatalf("reactivating key: %v", err)
	}
	cache.SetAPIKeyActive(keyID, true)

	resp = postChat(t, ts, "rk-user", `{"model":"gpt-test"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reactivated key: status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestIntegration_RequestLogPersisted(t *testing.T) {
	upstream := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-logged"}`)
	})
	defer upstream.Close()

	ts, st, _ := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if err := st.PutMapping("gpt-test", "alpha"); err != nil {
			t.Fatalf("putting mapping: %v", err)
		}
		if _, err := st.AddBackendURL("alpha", upstream.URL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if err := st.PutCredential("alpha", "sk-live"); err != nil {
			t.Fatalf("putting credential: %v", err)
		}
		if _, err := st.CreateAPIKey("rk-user", ""); err != nil {
			t.Fatalf("creating API key: %v", err)
		}
	})

	resp := postChat(t, ts, "rk-user", `{"model":"gpt-test","messages":[{"role":"user","content":"hi"}]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}

	records, err := st.ListRequests(10, 0)
	if err != nil {
		t.Fatalf("listing requests: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d request records, want 1", len(records))
	}
	rec := records[0]
	if rec.Model != "gpt-test" {
		t.Errorf("model = %q; want gpt-test", rec.Model)
	}
	if rec.Provider != "alpha" {
		t.Errorf("provider = %q; want alpha", rec.Provider)
	}
	if rec.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want %d", rec.StatusCode, http.StatusOK)
	}
	if rec.Outcome != "ok" {
		t.Errorf("outcome = %q; want ok", rec.Outcome)
	}
	if rec.RequestID == "" {
		t.Error("request id should be recorded")
	}
}

func TestIntegration_RejectedRequestsLeaveNoRequestLog(t *testing.T) {
	ts, st, _ := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if _, err := st.CreateAPIKey("rk-user", ""); err != nil {
			t.Fatalf("creating API key: %v", err)
		}
	})

	// Unauthorized: no key at all.
	resp := postChat(t, ts, "", `{"model":"gpt-test"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// Authorized but the model is unmapped.
	resp = postChat(t, ts, "rk-user", `{"model":"gpt-nowhere"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusNotFound)
	}

	// Neither request reached a failover loop, so neither was recorded.
	records, err := st.ListRequests(10, 0)
	if err != nil {
		t.Fatalf("listing requests: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d request records, want 0 for rejected requests", len(records))
	}
}

func TestIntegration_MetricsEndpointExposesCounters(t *testing.T) {
	upstream := mockUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-metrics"}`)
	})
	defer upstream.Close()

	ts, _, _ := setupIntegration(t, func(t *testing.T, st *store.Store) {
		if err := st.PutMapping("gpt-test", "alpha"); err != nil {
			t.Fatalf("putting mapping: %v", err)
		}
		if _, err := st.AddBackendURL("alpha", upstream.URL); err != nil {
			t.Fatalf("adding backend: %v", err)
		}
		if err := st.PutCredential("alpha", "sk-live"); err != nil {
			t.Fatalf("putting credential: %v", err)
		}
		if _, err := st.CreateAPIKey("rk-user", ""); err != nil {
			t.Fatalf("creating API key: %v", err)
		}
	})

	resp := postChat(t, ts, "rk-user", `{"model":"gpt-test"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}

	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer metricsResp.Body.Close()

	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d; want %d", metricsResp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if !strings.Contains(string(body), "routeman_requests_total") {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}
