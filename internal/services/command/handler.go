package command

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Handler handles HTTP requests for the command service.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new command HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With("handler", "command"),
	}
}

// commandRequest is the uniform request envelope. A missing expected_version
// means the caller opts out of the optimistic concurrency check.
type commandRequest struct {
	ExpectedVersion *int64          `json:"expected_version"`
	Payload         json.RawMessage `json:"payload"`
}

// commandResponse is returned on success.
type commandResponse struct {
	ID      string `json:"id,omitempty"`
	Version int64  `json:"version"`
}

// errorResponse mirrors aggregate.Error on the wire.
type errorResponse struct {
	Code    int      `json:"code"`
	Reasons []string `json:"reasons"`
}

// HandleCommands handles
//
//	POST   /api/v1/{kind}
//	POST   /api/v1/{kind}/{id}/{command}
//	POST   /api/v1/{kind}/{id}/stats/{increment|decrement}
//	DELETE /api/v1/{kind}/{id}
func (h *Handler) HandleCommands(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/"), "/")
	parts := strings.Split(path, "/")

	meta := events.Metadata{
		TraceID:    r.Header.Get("X-Trace-Id"),
		OperatedBy: r.Header.Get("X-Operated-By"),
	}

	req, err := h.readRequest(r)
	if err != nil {
		h.writeError(w, aggregate.NewValidation("malformed request body: "+err.Error()))
		return
	}
	expectedVersion := aggregate.VersionAny
	if req.ExpectedVersion != nil {
		expectedVersion = *req.ExpectedVersion
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodPost:
		id, version, err := h.service.Initialize(r.Context(), parts[0], req.Payload, meta)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, commandResponse{ID: id.String(), Version: version})

	case len(parts) == 2 && r.Method == http.MethodDelete:
		id, ok := h.parseID(w, parts[1])
		if !ok {
			return
		}
		version, err := h.service.Remove(r.Context(), parts[0], id, expectedVersion, meta)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, commandResponse{Version: version})

	case len(parts) == 4 && parts[2] == "stats" && r.Method == http.MethodPost:
		id, ok := h.parseID(w, parts[1])
		if !ok {
			return
		}
		version, err := h.service.AdjustStats(r.Context(), parts[0], id, parts[3], req.Payload, meta)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, commandResponse{Version: version})

	case len(parts) == 3 && r.Method == http.MethodPost:
		id, ok := h.parseID(w, parts[1])
		if !ok {
			return
		}
		version, err := h.service.Execute(r.Context(), parts[0], id, parts[2], expectedVersion, req.Payload, meta)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, commandResponse{Version: version})

	default:
		h.writeError(w, aggregate.NewValidation("unsupported route"))
	}
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) readRequest(r *http.Request) (commandRequest, error) {
	var req commandRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, err
	}
	if len(body) == 0 {
		return req, nil
	}
	err = json.Unmarshal(body, &req)
	return req, err
}

func (h *Handler) parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.FromString(raw)
	if err != nil {
		h.writeError(w, aggregate.NewValidation("malformed aggregate id "+raw))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var aggErr *aggregate.Error
	if errors.As(err, &aggErr) {
		h.writeJSON(w, aggErr.Code, errorResponse{Code: aggErr.Code, Reasons: aggErr.Reasons})
		return
	}

	h.logger.Error("command failed", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    http.StatusInternalServerError,
		Reasons: []string{"internal server error"},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
