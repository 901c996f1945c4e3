package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/tokrelay/internal/api/handler"
	mw "github.com/iconidentify/tokrelay/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
// No request timeout is applied; the relay bounds upstream idleness itself.
func NewRouter(
	streamHandler *handler.StreamHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Live)
	r.Get("/stats", healthHandler.Stats)

	r.Group(func(r chi.Router) {
		if apiKey != "" {
			r.Use(mw.APIKeyAuth(apiKey))
		}
		r.Post("/tiktok/stream", streamHandler.Stream)
	})

	return r
}
