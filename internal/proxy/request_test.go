package proxy

import (
	"strings"
	"testing"
)

func TestParseChatRequest_ExtractsRoutingFields(t *testing.T) {
	body := `{
		"model": "gpt-test",
		"stream": true,
		"temperature": 0.7,
		"messages": [
			{"role": "system", "content": "You are helpful."},
			{"role": "user", "content": "Hello"}
		]
	}`

	req, err := parseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("parseChatRequest error: %v", err)
	}
	if req.Model != "gpt-test" {
		t.Errorf("model = %q; want gpt-test", req.Model)
	}
	if !req.Stream {
		t.Error("stream flag should be true")
	}
	if len(req.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(req.Messages))
	}
	if req.Messages[1].Role != "user" || req.Messages[1].Content != "Hello" {
		t.Errorf("message 1 = %+v; want user/Hello", req.Messages[1])
	}
}

func TestParseChatRequest_MissingModelIsError(t *testing.T) {
	_, err := parseChatRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err == nil {
		t.Fatal("expected an error for a body without a model")
	}
	if !strings.Contains(err.Error(), "model") {
		t.Errorf("error = %v; want it to name the missing field", err)
	}
}

func TestParseChatRequest_InvalidJSONIsError(t *testing.T) {
	if _, err := parseChatRequest([]byte(`{broken`)); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestParseChatRequest_MessagesOptional(t *testing.T) {
	req, err := parseChatRequest([]byte(`{"model":"gpt-test"}`))
	if err != nil {
		t.Fatalf("parseChatRequest error: %v", err)
	}
	if len(req.Messages) != 0 {
		t.Errorf("got %d messages, want 0", len(req.Messages))
	}
}

func TestFlattenContent_PartsArray(t *testing.T) {
	raw := `[
		{"type": "text", "text": "first"},
		{"type": "image_url", "image_url": {"url": "https://example.com/a.png"}},
		{"type": "text", "text": "second"}
	]`

	got := flattenContent([]byte(raw))
	if got != "first\nsecond" {
		t.Errorf("flattened = %q; want text parts joined", got)
	}
}

func TestFlattenContent_MalformedDegradesToEmpty(t *testing.T) {
	// Malformed content must not reject the request; the backend decides.
	for _, raw := range []string{`42`, `{"nested":"object"}`, `[{"type":`} {
		if got := flattenContent([]byte(raw)); got != "" {
			t.Errorf("flattenContent(%q) = %q; want empty", raw, got)
		}
	}
}
