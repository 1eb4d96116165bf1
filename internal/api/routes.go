package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Recovery(),
		Logging(),
	)

	// Imports
	mux.Handle("GET /api/v1/imports", chain(http.HandlerFunc(h.ListImports)))
	mux.Handle("POST /api/v1/imports", chain(http.HandlerFunc(h.CreateImport)))
	mux.Handle("GET /api/v1/imports/{id}", chain(http.HandlerFunc(h.GetImport)))
	mux.Handle("POST /api/v1/imports/{id}/start", chain(http.HandlerFunc(h.StartImport)))
	mux.Handle("POST /api/v1/imports/{id}/pause", chain(http.HandlerFunc(h.PauseImport)))
	mux.Handle("POST /api/v1/imports/{id}/retry-quota-errors", chain(http.HandlerFunc(h.RetryQuotaErrors)))
	mux.Handle("POST /api/v1/imports/{id}/auto-resume", chain(http.HandlerFunc(h.AutoResume)))

	// Auth
	mux.Handle("GET /api/v1/auth/status", chain(http.HandlerFunc(h.AuthStatus)))
	mux.Handle("GET /auth", chain(http.HandlerFunc(h.AuthRedirect)))
	mux.Handle("GET /oauth2callback", chain(http.HandlerFunc(h.OAuthCallback)))
}
