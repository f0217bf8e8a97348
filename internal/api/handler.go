// Package api provides HTTP handlers for the registration assistant API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/akulikov/regdesk/internal/dialogue"
	"github.com/akulikov/regdesk/internal/session"
	"github.com/akulikov/regdesk/internal/store"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Handler serves the chat API.
type Handler struct {
	engine *dialogue.Engine
	repo   store.Repository
}

// NewHandler creates a new Handler.
func NewHandler(engine *dialogue.Engine, repo store.Repository) *Handler {
	return &Handler{engine: engine, repo: repo}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// ClearRequest is the body of POST /api/clear.
type ClearRequest struct {
	SessionID string `json:"session_id"`
}

// RegisterRoutes registers the chat API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/clear", h.Clear)
		r.Get("/registrations", h.ListRegistrations)
		r.Get("/audit", h.ListAudit)
	})
}

// Chat processes one user message and returns the assistant reply.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	reply, sessionID, err := h.engine.HandleMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			Error(w, http.StatusConflict, "session is processing another message, try again shortly")
			return
		}
		slog.Error("Chat turn failed", "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	JSON(w, http.StatusOK, ChatResponse{Response: reply, SessionID: sessionID})
}

// Clear resets a conversation. Idempotent: clearing an unknown session id
// succeeds.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id cannot be empty")
		return
	}

	h.engine.Clear(req.SessionID)
	JSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Conversation cleared",
	})
}

// ListRegistrations returns registrations newest-first.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)
	regs, err := h.repo.ListRegistrations(r.Context(), limit, offset)
	if err != nil {
		slog.Error("Failed to list registrations", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list registrations")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"registrations": regs, "count": len(regs)})
}

// ListAudit returns audit entries newest-first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)
	entries, err := h.repo.ListAudit(r.Context(), limit, offset)
	if err != nil {
		slog.Error("Failed to list audit entries", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// decodeJSON decodes a size-limited JSON body, writing the error response
// itself when decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			Error(w, http.StatusBadRequest, "request body is required")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
