package command

import "net/http"

// RegisterRoutes registers the command service routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/", h.HandleCommands)
	mux.HandleFunc("/health", h.HandleHealth)
}
