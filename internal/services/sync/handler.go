package sync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Handler exposes the synchronizer's administrative entry points.
type Handler struct {
	syncer *Syncer
	logger *slog.Logger
}

// NewHandler creates a new sync HTTP handler.
func NewHandler(syncer *Syncer, logger *slog.Logger) *Handler {
	return &Handler{
		syncer: syncer,
		logger: logger.With("handler", "sync"),
	}
}

// HandleSync handles POST /api/v1/sync/{kind}/{differences|all}
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/sync/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		h.writeError(w, http.StatusBadRequest, "invalid path: expected /api/v1/sync/{kind}/{differences|all}")
		return
	}
	kind, mode := parts[0], parts[1]

	var (
		res Result
		err error
	)
	switch mode {
	case "differences":
		res, err = h.syncer.SyncDifferences(r.Context(), kind)
	case "all":
		res, err = h.syncer.SyncAll(r.Context(), kind)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid sync mode: "+mode)
		return
	}

	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("sync pass failed", "kind", kind, "mode", mode, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
