package query

import "net/http"

// RegisterRoutes registers the query service routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/catalog/", h.HandleCatalog)
	mux.HandleFunc("/health", h.HandleHealth)
}
