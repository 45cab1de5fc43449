package router

import (
	"strings"

	"conduit/internal/errcode"
)

// validate checks the fields the Router itself is responsible for, beyond
// the missing_input/invalid_json checks already applied during decoding.
func validate(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return errcode.New(errcode.MissingText, "text must not be empty")
	}
	if req.Mode != "" && !Mode(req.Mode).Valid() {
		return errcode.New(errcode.InvalidMode, "mode must be one of auto, direct_only, async_only")
	}
	if req.Provider != "" && !Provider(req.Provider).Valid() {
		return errcode.New(errcode.UnsupportedProvider, "provider must be one of codex, claude, gemini")
	}
	return nil
}

// effectiveMode defaults an unset mode to auto.
func effectiveMode(raw string) Mode {
	if raw == "" {
		return ModeAuto
	}
	return Mode(raw)
}

// conversationID derives the persistence key for a request: user_id when
// present, else session_id, else a fixed fallback.
func conversationID(req Request) string {
	if strings.TrimSpace(req.UserID) != "" {
		return req.UserID
	}
	if strings.TrimSpace(req.SessionID) != "" {
		return req.SessionID
	}
	return "default"
}

// firstN truncates s to at most n runes.
func firstN(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
