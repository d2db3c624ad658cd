package tools

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"taskchat/internal/mcpauth"
	"taskchat/internal/mcpclient"
)

const maxBodySize = 256 * 1024 // 256KB

// Handler proxies tool discovery and tool calls to the upstream MCP server,
// attaching the session's OAuth token. A fresh client is built per request
// because auth headers are session-scoped.
type Handler struct {
	manager   *mcpauth.Manager
	serverURL string
	logger    *slog.Logger
}

// NewHandler creates a new tools handler
func NewHandler(manager *mcpauth.Manager, serverURL string) *Handler {
	return &Handler{
		manager:   manager,
		serverURL: serverURL,
		logger:    slog.Default(),
	}
}

// HandleList handles GET /api/tools
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	client, ok := h.connect(w, r)
	if !ok {
		return
	}
	defer client.Close()

	tools, err := client.ListTools(r.Context())
	if err != nil {
		h.logger.Error("failed to list upstream tools", "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamError", "Failed to list tools")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

// HandleCall handles POST /api/tools/call
func (h *Handler) HandleCall(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "name is required")
		return
	}

	client, ok := h.connect(w, r)
	if !ok {
		return
	}
	defer client.Close()

	result, err := client.CallTool(r.Context(), req.Name, req.Arguments)
	if err != nil {
		h.logger.Error("tool call failed", "tool", req.Name, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamError", "Tool call failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// connect produces an initialized MCP client for the acting session, writing
// the error response itself when it cannot.
func (h *Handler) connect(w http.ResponseWriter, r *http.Request) (*mcpclient.Client, bool) {
	headers := h.manager.GetAuthHeaders(r.Context(), w, r)
	if headers == nil {
		writeError(w, http.StatusUnauthorized, "AuthRequired",
			"Not authenticated with the upstream server")
		return nil, false
	}

	client := mcpclient.New(h.serverURL, mcpclient.WithHeaders(headers))
	if err := client.Initialize(r.Context()); err != nil {
		h.logger.Error("failed to connect to upstream mcp server", "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamError",
			"Failed to connect to the upstream server")
		return nil, false
	}
	return client, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorType, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error":   errorType,
		"message": message,
	})
}
