package sync

import "net/http"

// RegisterRoutes registers the sync service routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/sync/", h.HandleSync)
	mux.HandleFunc("/health", h.HandleHealth)
}
