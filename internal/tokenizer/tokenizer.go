package tokenizer

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Message represents a chat message for token counting purposes.
type Message struct {
	Role    string
	Content string
	Name    string // optional
}

// Tokenizer estimates prompt token counts using tiktoken encodings.
// Encodings are cached via sync.Once to avoid repeated initialization.
type Tokenizer struct {
	cl100kOnce sync.Once
	cl100kEnc  *tiktoken.Tiktoken
	cl100kErr  error

	o200kOnce sync.Once
	o200kEnc  *tiktoken.Tiktoken
	o200kErr  error
}

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	// OpenAI models — o200k_base
	"gpt-4.1":      "o200k_base",
	"gpt-4.1-mini": "o200k_base",
	"gpt-4.1-nano": "o200k_base",
	"gpt-4o":       "o200k_base",
	"gpt-4o-mini":  "o200k_base",
	"o1":           "o200k_base",
	"o3":           "o200k_base",
	"o4-mini":      "o200k_base",

	// OpenAI models — cl100k_base
	"gpt-4":         "cl100k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",

	// Non-OpenAI models served through OpenAI-compatible backends.
	// cl100k is a rough but stable estimate for these.
	"claude": "cl100k_base",
	"llama":  "cl100k_base",
}

// New creates a new Tokenizer instance.
func New() *Tokenizer {
	return &Tokenizer{}
}

// GetEncoding returns the encoding name for the given model.
// Unknown models default to cl100k_base.
func (t *Tokenizer) GetEncoding(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}

	// Prefix matching for versioned model names. Longest prefix wins so
	// "gpt-4.1-2025-04-14" resolves via "gpt-4.1", not "gpt-4".
	lower := strings.ToLower(model)
	best := ""
	bestLen := 0
	for m, enc := range modelEncodings {
		if strings.HasPrefix(lower, m) && len(m) > bestLen {
			best = enc
			bestLen = len(m)
		}
	}
	if best != "" {
		return best
	}

	return "cl100k_base"
}

// getEncoder returns the cached tiktoken encoder for the given model.
func (t *Tokenizer) getEncoder(model string) (*tiktoken.Tiktoken, error) {
	encName := t.GetEncoding(model)

	switch encName {
	case "o200k_base":
		t.o200kOnce.Do(func() {
			t.o200kEnc, t.o200kErr = tiktoken.GetEncoding("o200k_base")
		})
		return t.o200kEnc, t.o200kErr
	default:
		t.cl100kOnce.Do(func() {
			t.cl100kEnc, t.cl100kErr = tiktoken.GetEncoding("cl100k_base")
		})
		return t.cl100kEnc, t.cl100kErr
	}
}

// CountTokens counts the number of tokens in the given text for the specified model.
func (t *Tokenizer) CountTokens(model, text string) int {
	enc, err := t.getEncoder(model)
	if err != nil {
		return 0
	}
	tokens := enc.Encode(text, nil, nil)
	return len(tokens)
}

// CountMessages counts the total number of tokens across a slice of chat messages
// for the specified model. Each message incurs a 4-token overhead (role framing),
// and an additional 3 tokens are added for reply priming.
func (t *Tokenizer) CountMessages(model string, messages []Message) int {
	enc, err := t.getEncoder(model)
	if err != nil {
		return 0
	}

	total := 0
	for _, msg := range messages {
		// Every message has a 4-token overhead: <im_start>{role}\n ... <im_end>\n
		total += 4
		total += len(enc.Encode(msg.Role, nil, nil))
		total += len(enc.Encode(msg.Content, nil, nil))
		if msg.Name != "" {
			total += len(enc.Encode(msg.Name, nil, nil))
		}
	}

	// 3 tokens for reply priming (<im_start>assistant<im_sep>)
	total += 3

	return total
}
