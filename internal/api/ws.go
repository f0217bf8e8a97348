package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/akulikov/regdesk/internal/dialogue"
	"github.com/akulikov/regdesk/internal/session"
)

// WebSocketHandler handles WebSocket-based chat sessions.
type WebSocketHandler struct {
	engine        *dialogue.Engine
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(engine *dialogue.Engine, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		engine:        engine,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsInbound represents an incoming chat frame.
type wsInbound struct {
	Message string `json:"message"`
}

// wsOutbound represents an outgoing chat frame.
type wsOutbound struct {
	Response  string `json:"response,omitempty"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade. Each connection
// owns one conversation session; frames are processed in order, so the
// per-session turn lock is never contended from this path.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	sessionID := uuid.NewString()
	slog.Info("WebSocket chat connected", "session_id", sessionID, "ip", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			if err := h.writeJSON(ctx, ws, wsOutbound{SessionID: sessionID, Error: "invalid frame"}); err != nil {
				return
			}
			continue
		}
		if in.Message == "" {
			if err := h.writeJSON(ctx, ws, wsOutbound{SessionID: sessionID, Error: "message must not be empty"}); err != nil {
				return
			}
			continue
		}

		reply, _, err := h.engine.HandleMessage(ctx, sessionID, in.Message)
		if err != nil {
			if errors.Is(err, session.ErrBusy) {
				if err := h.writeJSON(ctx, ws, wsOutbound{SessionID: sessionID, Error: "previous turn still in progress"}); err != nil {
					return
				}
				continue
			}
			slog.Error("WebSocket turn failed", "error", err, "session_id", sessionID)
			if err := h.writeJSON(ctx, ws, wsOutbound{SessionID: sessionID, Error: "internal error"}); err != nil {
				return
			}
			continue
		}

		if err := h.writeJSON(ctx, ws, wsOutbound{Response: reply, SessionID: sessionID}); err != nil {
			slog.Debug("WebSocket write error", "error", err, "session_id", sessionID)
			return
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
