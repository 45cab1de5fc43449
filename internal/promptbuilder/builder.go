// Package promptbuilder assembles the single text prompt handed to a
// provider subprocess from the system prompt, recent conversation turns,
// and the current message.
package promptbuilder

import (
	"os"
	"strings"

	"conduit/internal/convstore"
	"conduit/internal/router"
)

const defaultSystemPrompt = "You are Solar, a practical AI assistant. Keep continuity with previous" +
	" conversation turns and answer with clear, useful output."

// ReadSystemPrompt returns the contents of path, trimmed, or the built-in
// default if the file does not exist.
func ReadSystemPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultSystemPrompt
	}
	return strings.TrimSpace(string(data))
}

const autoTrailer = `Respond with a single JSON object as your first output block, with at least:
{"decision": {"kind": "<direct_reply|async_draft_created|async_activation_needed>"}, "reply_text": "<text>"}
Do not wrap the JSON in markdown code fences.`

const directTrailer = "Respond directly to the current user message."

// Build assembles the full prompt text for one request.
func Build(systemPrompt string, recent []convstore.Record, req router.Request, conversationID string, mode router.Mode, channel router.Channel) string {
	var b strings.Builder

	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString("Conversation context\n")
	b.WriteString("- conversation_id: " + conversationID + "\n")
	b.WriteString("- channel: " + string(channel) + "\n")
	b.WriteString("- mode: " + string(mode) + "\n")
	b.WriteString("\n")

	if len(recent) > 0 {
		b.WriteString("Recent turns (oldest -> newest):\n")
		for _, r := range recent {
			label := "ASSISTANT"
			if r.Role == convstore.RoleUser {
				label = "USER"
			}
			b.WriteString(label + ": " + r.Text + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Current user message:\n")
	b.WriteString(req.Text)
	b.WriteString("\n\n")

	if mode == router.ModeAuto {
		b.WriteString(autoTrailer)
	} else {
		b.WriteString(directTrailer)
	}

	return b.String()
}
