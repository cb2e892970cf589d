package tokenizer

import (
	"testing"
)

func TestCountTokens_NonZeroForKnownText(t *testing.T) {
	tok := New()
	text := "Hello, world! This is a test of the tokenizer."
	count := tok.CountTokens("gpt-4", text)
	if count == 0 {
		t.Errorf("CountTokens returned 0 for known text %q; want non-zero", text)
	}
}

func TestCountTokens_ZeroForEmptyText(t *testing.T) {
	tok := New()
	count := tok.CountTokens("gpt-4", "")
	if count != 0 {
		t.Errorf("CountTokens returned %d for empty text; want 0", count)
	}
}

func TestGetEncoding_O200kForCurrentOpenAIModels(t *testing.T) {
	tok := New()

	models := []string{
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-4o",
		"gpt-4o-mini",
		"o1",
		"o3",
		"o4-mini",
	}

	for _, model := range models {
		enc := tok.GetEncoding(model)
		if enc != "o200k_base" {
			t.Errorf("GetEncoding(%q) = %q; want %q", model, enc, "o200k_base")
		}
	}
}

func TestGetEncoding_Cl100kForLegacyModels(t *testing.T) {
	tok := New()

	models := []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"}
	for _, model := range models {
		enc := tok.GetEncoding(model)
		if enc != "cl100k_base" {
			t.Errorf("GetEncoding(%q) = %q; want %q", model, enc, "cl100k_base")
		}
	}
}

func TestGetEncoding_Cl100kForUnknownModels(t *testing.T) {
	tok := New()
	unknowns := []string{
		"some-random-model",
		"mistral-7b",
		"qwen-72b",
	}
	for _, model := range unknowns {
		enc := tok.GetEncoding(model)
		if enc != "cl100k_base" {
			t.Errorf("GetEncoding(%q) = %q; want %q", model, enc, "cl100k_base")
		}
	}
}

func TestCountMessages_IncludesPerMessageOverhead(t *testing.T) {
	tok := New()
	model := "gpt-4"

	messages := []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}

	// Count tokens for just the raw content of each message.
	rawSum := 0
	for _, msg := range messages {
		rawSum += tok.CountTokens(model, msg.Role)
		rawSum += tok.CountTokens(model, msg.Content)
	}

	// CountMessages should include per-message overhead (4 tokens each)
	// and reply priming (3 tokens), so the result must be strictly greater
	// than the sum of individual token counts.
	total := tok.CountMessages(model, messages)
	if total <= rawSum {
		t.Errorf("CountMessages returned %d; expected > %d (raw sum) due to per-message overhead", total, rawSum)
	}
}

func TestGetEncoding_PrefixMatchForVersionedModelNames(t *testing.T) {
	tok := New()

	tests := []struct {
		model    string
		expected string
	}{
		// "gpt-4.1" is in the map; dated releases should match via prefix.
		{"gpt-4.1-2025-04-14", "o200k_base"},
		// "o3" is in the map.
		{"o3-mini-2025-01-31", "o200k_base"},
		// "claude" prefix covers all claude variants.
		{"claude-sonnet-4-5", "cl100k_base"},
		{"llama-3-70b-instruct", "cl100k_base"},
	}

	for _, tt := range tests {
		enc := tok.GetEncoding(tt.model)
		if enc != tt.expected {
			t.Errorf("GetEncoding(%q) = %q; want %q (prefix match)", tt.model, enc, tt.expected)
		}
	}
}
