package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"taskchat/internal/core/chats"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(errorResponse{
		Error:   errorType,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// handleServiceError maps service errors to HTTP responses
func handleServiceError(w http.ResponseWriter, err error) {
	var invalidRole *chats.InvalidRoleError
	var emptyContent *chats.EmptyContentError

	switch {
	case errors.Is(err, chats.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "ChatNotFound", "Chat not found")

	case errors.As(err, &invalidRole), errors.As(err, &emptyContent):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())

	default:
		// Don't leak internal error details to clients
		slog.Error("unexpected error in chat handler", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError",
			"An internal error occurred")
	}
}
