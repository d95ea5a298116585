package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/gifstash/internal/api/handler"
	mw "github.com/iconidentify/gifstash/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	linkHandler *handler.LinkHandler,
	auditHandler *handler.AuditHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(5 * time.Minute))

	// CORS for browser clients
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// System stats
		r.Get("/stats", healthHandler.Stats)

		// Link ingestion
		r.Post("/links", linkHandler.Create)
		r.Get("/links", linkHandler.List)
		r.Post("/links/claim", linkHandler.Claim)
		r.Get("/links/{linkID}/status", linkHandler.GetStatus)
		r.Post("/links/{linkID}/media", linkHandler.SubmitManualURL)
		r.Post("/links/{linkID}/retry", linkHandler.Retry)
		r.Delete("/links/{linkID}", linkHandler.Delete)

		// Audit trail
		r.Get("/audit/events", auditHandler.Query)
		r.Get("/audit/events/recent", auditHandler.Recent)
	})

	return r
}
