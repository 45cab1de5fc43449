// Package protocol defines the WebSocket frame envelope shared between
// the bridge and its clients: one request frame in, one response frame
// out, each tagged with a Type for dispatch.
package protocol

import (
	"encoding/json"
	"fmt"

	"conduit/internal/router"
)

// FrameType tags a WebSocket frame so a reader can dispatch before fully
// unmarshaling the payload.
type FrameType string

const (
	TypeRequest  FrameType = "request"
	TypeResponse FrameType = "response"
	TypeError    FrameType = "error"
)

// BaseFrame carries the fields every frame has, regardless of payload.
type BaseFrame struct {
	Type FrameType `json:"type"`
}

// RequestFrame is the inbound frame: a BaseFrame plus the full router
// request, inlined at the top level to match the wire contract.
type RequestFrame struct {
	Type      FrameType `json:"type"`
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Channel   string    `json:"channel,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ToRequest converts the wire frame into the internal router request.
func (f RequestFrame) ToRequest() router.Request {
	return router.Request{
		RequestID: f.RequestID,
		SessionID: f.SessionID,
		UserID:    f.UserID,
		Text:      f.Text,
		Channel:   f.Channel,
		Mode:      f.Mode,
		Provider:  f.Provider,
		Metadata:  f.Metadata,
	}
}

// ResponseFrame is the outbound frame: a BaseFrame plus the full
// router response, inlined at the top level.
type ResponseFrame struct {
	Type         FrameType       `json:"type"`
	Status       string          `json:"status"`
	RequestID    string          `json:"request_id"`
	ProviderUsed *string         `json:"provider_used"`
	ReplyText    string          `json:"reply_text"`
	Decision     router.Decision `json:"decision"`
	ErrorCode    *string         `json:"error_code"`
	Error        *string         `json:"error"`
}

// NewResponseFrame wraps a router response as an outbound frame.
func NewResponseFrame(resp router.Response) ResponseFrame {
	return ResponseFrame{
		Type:         TypeResponse,
		Status:       resp.Status,
		RequestID:    resp.RequestID,
		ProviderUsed: resp.ProviderUsed,
		ReplyText:    resp.ReplyText,
		Decision:     resp.Decision,
		ErrorCode:    resp.ErrorCode,
		Error:        resp.Error,
	}
}

// ParseRequestFrame decodes one inbound frame and verifies its type.
func ParseRequestFrame(data []byte) (RequestFrame, error) {
	var base BaseFrame
	if err := json.Unmarshal(data, &base); err != nil {
		return RequestFrame{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if base.Type != TypeRequest {
		return RequestFrame{}, fmt.Errorf("protocol: unexpected frame type %q, want %q", base.Type, TypeRequest)
	}
	var frame RequestFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return RequestFrame{}, fmt.Errorf("protocol: decode request frame: %w", err)
	}
	return frame, nil
}
