package httpbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type parsedN8N struct {
	requestID string
	sessionID string
	userID    string
	text      string
}

// parseN8NRequest accepts the native {"type":"request",...} contract
// first, then falls back to a handful of common n8n payload shapes
// before giving up.
func parseN8NRequest(raw []byte) (*parsedN8N, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid n8n payload: %w", err)
	}

	if t, _ := generic["type"].(string); t == "request" {
		text, _ := generic["text"].(string)
		if text == "" {
			return nil, fmt.Errorf("unsupported n8n payload: empty text")
		}
		return &parsedN8N{
			requestID: stringOr(generic["request_id"], "n8n_"+uuid.NewString()[:12]),
			sessionID: stringOr(generic["session_id"], "n8n:default"),
			userID:    stringOr(generic["user_id"], "n8n-user"),
			text:      text,
		}, nil
	}

	text, _ := generic["text"].(string)
	if text == "" {
		text, _ = generic["message_text"].(string)
	}
	if text == "" {
		text, _ = generic["message"].(string)
	}
	if text == "" {
		if body, ok := generic["body"].(map[string]any); ok {
			if v, _ := body["text"].(string); v != "" {
				text = v
			} else if v, _ := body["message_text"].(string); v != "" {
				text = v
			}
		}
	}
	if text == "" {
		return nil, fmt.Errorf("unsupported n8n payload: no recognizable text field")
	}

	return &parsedN8N{
		requestID: stringOr(generic["request_id"], "n8n_"+uuid.NewString()[:12]),
		sessionID: stringOr(generic["session_id"], "n8n:default"),
		userID:    stringOr(generic["user_id"], "n8n-user"),
		text:      text,
	}, nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
