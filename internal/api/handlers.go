package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/varsilias/chatbot/internal/buildinfo"
	"github.com/varsilias/chatbot/internal/chat"
	"github.com/varsilias/chatbot/internal/middleware"
	"github.com/varsilias/chatbot/internal/models"
	"github.com/varsilias/chatbot/internal/session"
	"github.com/varsilias/chatbot/internal/stream"
	"github.com/varsilias/chatbot/pkg/types"
	"github.com/varsilias/chatbot/pkg/utils"
)

const (
	defaultSessionID = "default"
	// failedTurn is all a client learns about a failed completion; details go
	// to the log.
	failedTurn = "completion failed"
)

type Handlers struct {
	log      *slog.Logger
	sessions session.Store
	models   models.Manager
	model    string
}

func NewHandlers(log *slog.Logger, store session.Store, manager models.Manager, model string) *Handlers {
	return &Handlers{
		log:      log,
		sessions: store,
		models:   manager,
		model:    model,
	}
}

// Health is a basic liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"status":    true,
		"message":   "chatbot",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready reports whether the endpoint serves the configured model.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.models.Healthy(r.Context(), h.model); err != nil {
		h.log.Warn("readiness check failed", "model", h.model, "err", err)
		utils.JSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "model": h.model})
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"ready": true, "model": h.model})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"version":  buildinfo.Version,
		"commit":   buildinfo.Commit,
		"built_at": buildinfo.BuiltAt,
	})
}

// ListModels GET /api/models
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	items, err := h.models.List(r.Context())
	if err != nil {
		h.log.Error("list models", "err", err)
		utils.Error(w, http.StatusBadGateway, "model listing unavailable")
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"models": items, "active": h.model})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Stream    bool   `json:"stream"`
}

// Chat POST /api/chat runs one turn. With "stream": true the reply arrives
// as server-sent events, otherwise as one JSON document.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		utils.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = defaultSessionID
	}

	cs, err := h.sessions.Session(req.SessionID)
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.log.With("session", req.SessionID, "req_id", middleware.GetRequestID(r.Context()))
	start := time.Now()

	if req.Stream {
		sw := stream.NewWriter(w)
		reply, err := cs.Submit(r.Context(), req.Message, sw.Delta)
		if err != nil {
			log.Error("chat turn", "err", err)
			_ = sw.Error(failedTurn)
			return
		}
		_ = sw.Event(stream.EventDone, h.chatResponse(reply, req.SessionID, time.Since(start)))
		return
	}

	reply, err := cs.Submit(r.Context(), req.Message, nil)
	if err != nil {
		log.Error("chat turn", "err", err)
		if errors.Is(err, chat.ErrEmptyMessage) {
			utils.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.Error(w, http.StatusBadGateway, failedTurn)
		return
	}
	utils.JSON(w, http.StatusOK, h.chatResponse(reply, req.SessionID, time.Since(start)))
}

func (h *Handlers) chatResponse(reply types.Message, sessionID string, latency time.Duration) map[string]any {
	return map[string]any{
		"response":   reply.Content,
		"timestamp":  reply.Timestamp.UTC().Format(time.RFC3339),
		"latency_ms": latency.Milliseconds(),
		"model":      h.model,
		"session_id": sessionID,
	}
}

// GetHistory GET /api/history/{id}
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.Error(w, http.StatusBadRequest, "missing session_id")
		return
	}

	out := make([]map[string]string, 0)
	if cs, ok := h.sessions.Lookup(id); ok {
		for _, m := range cs.Messages() {
			out = append(out, map[string]string{"role": string(m.Role), "content": m.Content})
		}
	}
	utils.JSON(w, http.StatusOK, map[string]any{"session_id": id, "history": out})
}

// ListSessions GET /api/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{"sessions": h.sessions.List()})
}

// DropSession DELETE /api/sessions/{id} forgets the session entirely.
func (h *Handlers) DropSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sessions.Drop(id) {
		utils.Error(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetHistory DELETE /api/history/{id}
func (h *Handlers) ResetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if cs, ok := h.sessions.Lookup(id); ok {
		cs.Reset()
	}
	w.WriteHeader(http.StatusNoContent)
}
