package proxy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// chatRequest is the minimal view of a chat completions body the gateway
// needs for routing: the model name for provider resolution, the stream
// flag for relay mode, and message text for the prompt-token estimate.
// Everything else is forwarded untouched in the original raw body.
type chatRequest struct {
	Model    string
	Stream   bool
	Messages []chatMessage
}

type chatMessage struct {
	Role    string
	Content string
}

// rawChatRequest mirrors the JSON field layout. Message content is kept raw
// because it may be a plain string or an array of typed parts.
type rawChatRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages json.RawMessage `json:"messages"`
}

type rawChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseChatRequest extracts the routing view from a chat completions body.
// A missing or empty model field is an error; messages are optional and
// malformed message content degrades to an empty string rather than
// rejecting a body the backend might still accept.
func parseChatRequest(body []byte) (*chatRequest, error) {
	var raw rawChatRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing chat request: %w", err)
	}
	if raw.Model == "" {
		return nil, fmt.Errorf("chat request has no model field")
	}

	req := &chatRequest{
		Model:  raw.Model,
		Stream: raw.Stream,
	}

	if raw.Messages != nil {
		var rawMsgs []rawChatMessage
		if err := json.Unmarshal(raw.Messages, &rawMsgs); err != nil {
			return nil, fmt.Errorf("parsing chat messages: %w", err)
		}
		for _, rm := range rawMsgs {
			req.Messages = append(req.Messages, chatMessage{
				Role:    rm.Role,
				Content: flattenContent(rm.Content),
			})
		}
	}

	return req, nil
}

// flattenContent reduces a message content value to plain text. Content may
// be a JSON string or an array of parts; only "text" parts contribute.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "\""):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case strings.HasPrefix(trimmed, "["):
		var parts []contentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return ""
		}
		var texts []string
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	default:
		return ""
	}
}
