package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/projections"
)

// Handler handles HTTP requests for the query service.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new query HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With("handler", "query"),
	}
}

// listResponse is the paged list envelope.
type listResponse struct {
	Items  []projections.Record `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// HandleCatalog handles
//
//	GET /api/v1/catalog/{kind}
//	GET /api/v1/catalog/{kind}/{id}
//
// List query parameters: repeated filter=field:op:value, repeated
// sort=field or sort=-field (descending), limit, offset.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/catalog/"), "/")
	parts := strings.Split(path, "/")

	switch len(parts) {
	case 1:
		if parts[0] == "" {
			h.writeError(w, http.StatusBadRequest, "invalid path: expected /api/v1/catalog/{kind}")
			return
		}
		h.handleList(w, r, parts[0])
	case 2:
		h.handleGet(w, r, parts[0], parts[1])
	default:
		h.writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, kind, rawID string) {
	id, err := uuid.FromString(rawID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed aggregate id "+rawID)
		return
	}

	rec, err := h.service.Get(r.Context(), kind, id)
	if err != nil {
		if errors.Is(err, projections.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "projection not found")
			return
		}
		h.logger.Error("failed to get projection", "kind", kind, "aggregate_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, kind string) {
	filters, err := parseFilters(r.URL.Query()["filter"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sorts := parseSorts(r.URL.Query()["sort"])

	limit := 0
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed limit "+raw)
			return
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed offset "+raw)
			return
		}
	}

	items, total, err := h.service.PagedList(r.Context(), kind, filters, sorts, offset, limit)
	if err != nil {
		if errors.Is(err, ErrBadQuery) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to list projections", "kind", kind, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if items == nil {
		items = []projections.Record{}
	}

	h.writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

// parseFilters decodes repeated filter=field:op:value parameters. The value
// segment may itself contain colons.
func parseFilters(raw []string) ([]projections.Filter, error) {
	filters := make([]projections.Filter, 0, len(raw))
	for _, f := range raw {
		segments := strings.SplitN(f, ":", 3)
		if len(segments) != 3 || segments[0] == "" || segments[1] == "" {
			return nil, fmt.Errorf("malformed filter %q: expected field:op:value", f)
		}
		filters = append(filters, projections.Filter{
			Field: segments[0],
			Op:    projections.Op(segments[1]),
			Value: segments[2],
		})
	}
	return filters, nil
}

// parseSorts decodes repeated sort=field parameters; a leading dash flips to
// descending.
func parseSorts(raw []string) []projections.Sort {
	sorts := make([]projections.Sort, 0, len(raw))
	for _, s := range raw {
		desc := strings.HasPrefix(s, "-")
		sorts = append(sorts, projections.Sort{
			Field:      strings.TrimPrefix(s, "-"),
			Descending: desc,
		})
	}
	return sorts
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
