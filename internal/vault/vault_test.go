package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveKeyRef_EnvFormat(t *testing.T) {
	v := New()

	const envVar = "TEST_ROUTEMAN_VAULT_KEY"
	const expected = "sk-test-1234"

	t.Setenv(envVar, expected)

	got, err := v.ResolveKeyRef("env:" + envVar)
	if err != nil {
		t.Fatalf("ResolveKeyRef(env:): %v", err)
	}
	if got != expected {
		t.Errorf("got %q, want %q", got, expected)
	}
}

func TestResolveKeyRef_EnvFormat_Unset(t *testing.T) {
	v := New()

	os.Unsetenv("NONEXISTENT_KEY_VAR")

	_, err := v.ResolveKeyRef("env:NONEXISTENT_KEY_VAR")
	if err == nil {
		t.Fatal("expected error for unset env var")
	}
}

func TestResolveKeyRef_LiteralPassthrough(t *testing.T) {
	v := New()

	for _, literal := range []string{"sk-plain-secret", "Bearer-ish-token", ""} {
		got, err := v.ResolveKeyRef(literal)
		if err != nil {
			t.Fatalf("ResolveKeyRef(%q): %v", literal, err)
		}
		if got != literal {
			t.Errorf("ResolveKeyRef(%q): got %q, want the literal back", literal, got)
		}
	}
}

func TestIsKeyRef(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"keyring://routeman/openai", true},
		{"env:MY_KEY", true},
		{"file:///etc/key", true},
		{"sk-literal-secret", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsKeyRef(tc.value); got != tc.want {
			t.Errorf("IsKeyRef(%q): got %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestResolveKeyRef_KeyringBadFormat(t *testing.T) {
	v := New()

	// Missing service/provider structure.
	_, err := v.ResolveKeyRef("keyring://badformat")
	if err == nil {
		t.Fatal("expected error for malformed keyring ref")
	}
}

func TestResolveKeyRef_KeyringWrongService(t *testing.T) {
	v := New()

	_, err := v.ResolveKeyRef("keyring://other-service/anthropic")
	if err == nil {
		t.Fatal("expected error for wrong service name")
	}
}

func TestResolveKeyRef_EmptyProvider(t *testing.T) {
	v := New()

	_, err := v.ResolveKeyRef("keyring://routeman/")
	if err == nil {
		t.Fatal("expected error for empty provider in keyring ref")
	}
}

func TestGet_EnvFallback(t *testing.T) {
	v := New()

	const envVar = "ROUTEMAN_KEY_TESTPROVIDER"
	const expected = "env-key-value"

	t.Setenv(envVar, expected)

	got, err := v.Get("testprovider")
	if err != nil {
		t.Fatalf("Get with env fallback: %v", err)
	}
	if got != expected {
		t.Errorf("got %q, want %q", got, expected)
	}
}

func TestResolveKeyRef_FileFormat(t *testing.T) {
	v := New()

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "api-key.txt")
	if err := os.WriteFile(keyFile, []byte("sk-file-secret-key\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	got, err := v.ResolveKeyRef("file://" + keyFile)
	if err != nil {
		t.Fatalf("ResolveKeyRef(file://): %v", err)
	}
	if got != "sk-file-secret-key" {
		t.Errorf("got %q, want %q", got, "sk-file-secret-key")
	}
}

func TestResolveKeyRef_FileFormat_NotFound(t *testing.T) {
	v := New()

	_, err := v.ResolveKeyRef("file:///nonexistent/path/key.txt")
	if err == nil {
		t.Fatal("expected error for missing key file")
	}
}

func TestResolveKeyRef_FileFormat_Empty(t *testing.T) {
	v := New()

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "empty-key.txt")
	if err := os.WriteFile(keyFile, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	_, err := v.ResolveKeyRef("file://" + keyFile)
	if err == nil {
		t.Fatal("expected error for empty key file")
	}
}

func TestGet_NoKeyFound(t *testing.T) {
	v := New()

	os.Unsetenv("ROUTEMAN_KEY_NOPROVIDER")

	_, err := v.Get("noprovider")
	if err == nil {
		t.Fatal("expected error when no key found")
	}
}

func TestResolver_LiteralBypassesCache(t *testing.T) {
	r, err := NewResolver(New(), time.Minute, 8)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	got, err := r.Resolve("sk-literal")
	if err != nil {
		t.Fatalf("Resolve literal: %v", err)
	}
	if got != "sk-literal" {
		t.Errorf("got %q, want %q", got, "sk-literal")
	}
	if r.cache.Len() != 0 {
		t.Errorf("literal resolution populated the cache: %d entries", r.cache.Len())
	}
}

func TestResolver_CachesEnvRef(t *testing.T) {
	r, err := NewResolver(New(), time.Minute, 8)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	const envVar = "TEST_ROUTEMAN_RESOLVER_KEY"
	t.Setenv(envVar, "first-value")

	got, err := r.Resolve("env:" + envVar)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "first-value" {
		t.Errorf("got %q, want %q", got, "first-value")
	}

	// Within the TTL the cached value wins over a changed source.
	t.Setenv(envVar, "second-value")
	got, err = r.Resolve("env:" + envVar)
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if got != "first-value" {
		t.Errorf("cached resolve: got %q, want %q", got, "first-value")
	}
}

func TestResolver_TTLExpiry(t *testing.T) {
	r, err := NewResolver(New(), 10*time.Millisecond, 8)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	const envVar = "TEST_ROUTEMAN_RESOLVER_TTL"
	t.Setenv(envVar, "first-value")

	if _, err := r.Resolve("env:" + envVar); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	t.Setenv(envVar, "second-value")
	time.Sleep(20 * time.Millisecond)

	got, err := r.Resolve("env:" + envVar)
	if err != nil {
		t.Fatalf("Resolve after expiry: %v", err)
	}
	if got != "second-value" {
		t.Errorf("after expiry: got %q, want %q", got, "second-value")
	}
}

func TestResolver_ErrorsNotCached(t *testing.T) {
	r, err := NewResolver(New(), time.Minute, 8)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	const envVar = "TEST_ROUTEMAN_RESOLVER_LATE"
	os.Unsetenv(envVar)

	if _, err := r.Resolve("env:" + envVar); err == nil {
		t.Fatal("expected error for unset env var")
	}

	t.Setenv(envVar, "now-set")
	got, err := r.Resolve("env:" + envVar)
	if err != nil {
		t.Fatalf("Resolve after setting var: %v", err)
	}
	if got != "now-set" {
		t.Errorf("got %q, want %q", got, "now-set")
	}
}
