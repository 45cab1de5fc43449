package httpbridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
)

type parsedUpdate struct {
	dedupKey string
	chatID   string
	userID   string
	text     string
}

// parseTelegramUpdate extracts the fields the router needs from a raw
// Telegram update payload, and the key used to dedup this specific
// delivery. Payloads without a text message or a chat id are rejected.
func parseTelegramUpdate(raw []byte) (*parsedUpdate, error) {
	var update models.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("invalid telegram payload: %w", err)
	}
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		return nil, fmt.Errorf("unsupported telegram payload: no message text")
	}
	if update.Message.Chat.ID == 0 {
		return nil, fmt.Errorf("unsupported telegram payload: no chat id")
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	userID := "unknown"
	if update.Message.From != nil {
		userID = strconv.FormatInt(update.Message.From.ID, 10)
	}

	var key string
	if update.ID != 0 {
		key = fmt.Sprintf("telegram:update:%d", update.ID)
	} else {
		key = fmt.Sprintf("telegram:fallback:%s:%d:%d", chatID, update.Message.ID, update.Message.Date)
	}

	return &parsedUpdate{
		dedupKey: key,
		chatID:   chatID,
		userID:   userID,
		text:     update.Message.Text,
	}, nil
}

// sendTelegramReply posts a reply through the Bot API using a plain form
// POST, mirroring the minimal client the legacy bridge used rather than
// pulling in the full SDK's request machinery for one call.
func sendTelegramReply(botToken, parseMode, disablePreview, chatID, text string) error {
	if botToken == "" {
		return nil
	}
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", botToken)
	form := url.Values{
		"chat_id":                  {chatID},
		"text":                     {text},
		"parse_mode":               {parseMode},
		"disable_web_page_preview": {disablePreview},
	}
	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.PostForm(apiURL, form)
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send failed: status %d", resp.StatusCode)
	}
	return nil
}
