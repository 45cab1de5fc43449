// Package wsbridge exposes the Router over a single WebSocket endpoint.
// Each connection exchanges JSON frames: one {"type":"request",...} in,
// one {"type":"response",...} out per message, with a keepalive ping/pong
// cycle holding the connection open between messages.
package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"conduit/internal/errcode"
	"conduit/internal/router"
	"conduit/pkg/protocol"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	pingInterval = 60 * time.Second
	pongWait     = 180 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge upgrades the configured path to a WebSocket and delegates every
// request frame to an in-process Router call.
type Bridge struct {
	path          string
	router        *router.Router
	routerTimeout time.Duration
	logger        *log.Logger
}

func New(path string, rt *router.Router, routerTimeout time.Duration, logger *log.Logger) *Bridge {
	return &Bridge{path: path, router: rt, routerTimeout: routerTimeout, logger: logger.With("component", "wsbridge")}
}

// Handler returns the http.HandlerFunc to mount as the bridge's catch-all.
// It must see every request, including ones for paths other than the
// configured one, so that a mismatch can be reported as a structured
// invalid_path envelope instead of disappearing into a mux's own 404.
func (b *Bridge) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != b.path {
			writeHTTPError(w, http.StatusNotFound, errcode.InvalidPath, fmt.Sprintf("no websocket endpoint at %s", r.URL.Path))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Error("upgrade failed", "error", err)
			return
		}
		b.serve(conn)
	}
}

func (b *Bridge) serve(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame, parseErr := protocol.ParseRequestFrame(data)
		if parseErr != nil {
			b.writeError(conn, "", errcode.InvalidJSON, parseErr.Error())
			continue
		}

		timeout := b.routerTimeout
		if timeout <= 0 {
			timeout = 310 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		resp := b.router.Handle(ctx, frame.ToRequest())
		cancel()

		respFrame := protocol.NewResponseFrame(resp)
		raw, marshalErr := json.Marshal(respFrame)
		if marshalErr != nil {
			b.logger.Error("failed to marshal response frame", "error", marshalErr)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}

func (b *Bridge) writeError(conn *websocket.Conn, requestID string, code errcode.Code, msg string) {
	frame := errorFrame(requestID, code, msg)
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, raw)
}

// writeHTTPError reports a failure that occurs before any WebSocket
// connection exists (a path mismatch), as the same structured envelope
// shape a frame-level error would carry, over plain HTTP.
func writeHTTPError(w http.ResponseWriter, status int, code errcode.Code, msg string) {
	frame := errorFrame("", code, msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(frame)
}

func errorFrame(requestID string, code errcode.Code, msg string) protocol.ResponseFrame {
	codeStr := string(code)
	resp := router.Response{
		Status:    router.StatusFailed,
		RequestID: requestID,
		Decision:  router.Decision{Kind: router.DecisionDirectReply},
		ErrorCode: &codeStr,
		Error:     &msg,
	}
	return protocol.NewResponseFrame(resp)
}
