package httpbridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"conduit/internal/config"
	"conduit/internal/router"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func testBridge(t *testing.T) *Bridge {
	t.Helper()
	script := filepath.Join(t.TempDir(), "provider.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho '{\"decision\":{\"kind\":\"direct_reply\"},\"reply_text\":\"ack\"}'"), 0o755))

	cfg := &config.Config{
		RepoRoot:         t.TempDir(),
		ProviderCmd:      map[string]string{"codex": script, "claude": script, "gemini": script},
		ProviderPriority: []string{"codex"},
		ContextTurns:     4,
		RuntimeDir:       t.TempDir(),
		SystemPromptFile: filepath.Join(t.TempDir(), "missing.md"),
		ProviderTimeout:  2 * time.Second,
		Features:         map[string]bool{},
	}
	logger := log.New(os.Stderr)
	logger.SetLevel(log.FatalLevel)
	rt := router.New(cfg, logger)

	dedup, err := NewDedup(filepath.Join(t.TempDir(), "dedup.sqlite"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { dedup.Close() })

	return New(Config{WebhookBase: "/webhook", RouterTimeout: 2 * time.Second}, rt, dedup, logger)
}

func TestHealth(t *testing.T) {
	b := testBridge(t)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownProviderReturns404(t *testing.T) {
	b := testBridge(t)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook/discord", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "failed", body["status"])
	require.Equal(t, "Unknown route", body["error"])
}

func TestN8NSynchronousEnvelope(t *testing.T) {
	b := testBridge(t)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	payload := []byte(`{"type":"request","request_id":"r1","session_id":"s1","user_id":"u1","text":"hi"}`)
	resp, err := http.Post(srv.URL+"/webhook/n8n", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ack", body["reply_text"])
	require.Equal(t, true, body["ok"])
}

func TestTelegramFastAckAndDedup(t *testing.T) {
	b := testBridge(t)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	update := []byte(`{"update_id":42,"message":{"message_id":1,"date":100,"text":"hi","chat":{"id":555},"from":{"id":7}}}`)

	resp1, err := http.Post(srv.URL+"/webhook/telegram", "application/json", bytes.NewReader(update))
	require.NoError(t, err)
	defer resp1.Body.Close()
	require.Equal(t, http.StatusOK, resp1.StatusCode)
	var body1 map[string]any
	require.NoError(t, json.NewDecoder(resp1.Body).Decode(&body1))
	require.Equal(t, true, body1["accepted"])
	require.Equal(t, true, body1["ok"])
	require.Equal(t, "/webhook/telegram", body1["route"])
	require.Equal(t, "telegram", body1["channel"])
	require.NotEmpty(t, body1["request_id"])

	resp2, err := http.Post(srv.URL+"/webhook/telegram", "application/json", bytes.NewReader(update))
	require.NoError(t, err)
	defer resp2.Body.Close()
	var body2 map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body2))
	require.Equal(t, true, body2["duplicate"])
	require.Equal(t, true, body2["ok"])
	require.Equal(t, "/webhook/telegram", body2["route"])
	require.Equal(t, "telegram", body2["channel"])
}
