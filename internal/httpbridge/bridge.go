// Package httpbridge exposes the Router to inbound webhooks: Telegram
// updates are acknowledged immediately and processed in the background
// (with delivery dedup), n8n requests are handled synchronously and
// return the full response envelope.
package httpbridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"conduit/internal/router"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const bridgeName = "solar-transport-gateway"

// Config configures one Bridge instance.
type Config struct {
	WebhookBase string

	TelegramBotToken       string
	TelegramParseMode      string
	TelegramDisablePreview string

	RouterTimeout time.Duration
}

// Bridge serves /health and /{WebhookBase}/<provider> over plain HTTP.
type Bridge struct {
	cfg    Config
	router *router.Router
	dedup  *Dedup
	logger *log.Logger
}

func New(cfg Config, rt *router.Router, dedup *Dedup, logger *log.Logger) *Bridge {
	cfg.WebhookBase = strings.TrimSuffix(cfg.WebhookBase, "/")
	if cfg.WebhookBase == "" {
		cfg.WebhookBase = "/webhook"
	}
	return &Bridge{cfg: cfg, router: rt, dedup: dedup, logger: logger.With("component", "httpbridge")}
}

// Handler returns the full http.Handler for the gateway's HTTP surface.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", b.handleHealth)
	mux.HandleFunc(b.cfg.WebhookBase+"/telegram", b.handleTelegram)
	mux.HandleFunc(b.cfg.WebhookBase+"/n8n", b.handleN8N)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, failureBody(r.URL.Path, "Unknown route"))
	})
	return mux
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"bridge": bridgeName,
		"route":  b.cfg.WebhookBase + "/<provider>",
	})
}

// handleTelegram dedups the delivery, acknowledges immediately, and
// processes the update in the background — Telegram expects a response
// well inside its retry deadline.
func (b *Bridge) handleTelegram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failureBody(b.cfg.WebhookBase+"/telegram", "could not read request body"))
		return
	}

	parsed, err := parseTelegramUpdate(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failureBody(b.cfg.WebhookBase+"/telegram", err.Error()))
		return
	}

	route := b.cfg.WebhookBase + "/telegram"

	shouldProcess, err := b.dedup.TryBegin(parsed.dedupKey)
	if err != nil {
		b.logger.Error("dedup check failed", "error", err)
	}
	if !shouldProcess {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"ok":        true,
			"bridge":    bridgeName,
			"route":     route,
			"channel":   "telegram",
			"duplicate": true,
		})
		return
	}

	requestID := "tg_" + uuid.NewString()[:12]
	go b.processTelegram(requestID, parsed)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"ok":         true,
		"bridge":     bridgeName,
		"route":      route,
		"channel":    "telegram",
		"accepted":   true,
		"request_id": requestID,
	})
}

func (b *Bridge) processTelegram(requestID string, parsed *parsedUpdate) {
	timeout := b.cfg.RouterTimeout
	if timeout <= 0 {
		timeout = 310 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp := b.router.Handle(ctx, router.Request{
		RequestID: requestID,
		SessionID: "telegram:" + parsed.chatID,
		UserID:    parsed.userID,
		Text:      parsed.text,
		Channel:   "telegram",
	})

	if resp.Status != router.StatusSuccess {
		b.logger.Error("telegram request failed", "error", resp.Error)
		b.dedup.MarkFailed(parsed.dedupKey)
		return
	}

	if err := sendTelegramReply(b.cfg.TelegramBotToken, b.cfg.TelegramParseMode, b.cfg.TelegramDisablePreview, parsed.chatID, resp.ReplyText); err != nil {
		b.logger.Error("telegram send failed", "error", err)
		b.dedup.MarkFailed(parsed.dedupKey)
		return
	}

	if err := b.dedup.MarkDone(parsed.dedupKey); err != nil {
		b.logger.Error("dedup mark done failed", "error", err)
	}
}

// handleN8N runs synchronously and returns the full enriched envelope.
func (b *Bridge) handleN8N(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failureBody(b.cfg.WebhookBase+"/n8n", "could not read request body"))
		return
	}

	parsed, err := parseN8NRequest(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failureBody(b.cfg.WebhookBase+"/n8n", err.Error()))
		return
	}

	timeout := b.cfg.RouterTimeout
	if timeout <= 0 {
		timeout = 310 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := b.router.Handle(ctx, router.Request{
		RequestID: parsed.requestID,
		SessionID: parsed.sessionID,
		UserID:    parsed.userID,
		Text:      parsed.text,
		Channel:   "n8n",
	})

	providerUsed := "unknown"
	if resp.ProviderUsed != nil {
		providerUsed = *resp.ProviderUsed
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"ok":              resp.Status == router.StatusSuccess,
		"bridge":          bridgeName,
		"route":           b.cfg.WebhookBase + "/n8n",
		"provider":        "n8n",
		"request_id":      parsed.requestID,
		"output":          resp.ReplyText,
		"reply_text":      resp.ReplyText,
		"text":            resp.ReplyText,
		"provider_used":   providerUsed,
		"router_status":   resp.Status,
		"router_response": resp,
	})
}

func failureBody(route, msg string) map[string]any {
	return map[string]any{
		"status": "failed",
		"bridge": bridgeName,
		"route":  route,
		"error":  msg,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
