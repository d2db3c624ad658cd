package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskchat/internal/api/middleware"
	"taskchat/internal/core/chats"
)

const maxBodySize = 1 * 1024 * 1024 // 1MB

// Handler serves the chat CRUD API. Every operation is scoped to the
// anonymous session established by the session middleware.
type Handler struct {
	service chats.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(service chats.ChatService) *Handler {
	return &Handler{service: service}
}

// HandleCreate handles POST /api/chats
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "SessionRequired", "No session established")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req chats.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	req.SessionID = sessionID

	chat, err := h.service.CreateChat(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// HandleList handles GET /api/chats
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "SessionRequired", "No session established")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.service.ListChats(r.Context(), sessionID, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chats": list})
}

// HandleGet handles GET /api/chats/{chatID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "SessionRequired", "No session established")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	conversation, err := h.service.GetChat(r.Context(), sessionID, chatID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conversation)
}

// HandleDelete handles DELETE /api/chats/{chatID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "SessionRequired", "No session established")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	if err := h.service.DeleteChat(r.Context(), sessionID, chatID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleRename handles PATCH /api/chats/{chatID}
func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "SessionRequired", "No session established")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "title is required")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	chat, err := h.service.RenameChat(r.Context(), sessionID, chatID, req.Title)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// HandleAppendMessage handles POST /api/chats/{chatID}/messages
func (h *Handler) HandleAppendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "SessionRequired", "No session established")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req chats.AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	req.SessionID = sessionID
	req.ChatID = chi.URLParam(r, "chatID")

	msg, err := h.service.AppendMessage(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
