package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)

	// WebSocket connections are long-lived and must not inherit the timeout
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWs)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/healthz", h.handleHealth)

		// Public API
		r.Post("/api/votes", h.handleCastVote)
		r.Get("/api/periods/{id}/voter-status", h.handleVoterStatus)
		r.Get("/api/periods/{id}/winners", h.handleGetWinners)
		r.Get("/api/submissions/{id}", h.handleGetSubmission)
		r.Get("/api/submissions/{id}/qr", h.handleSubmissionQR)

		// Auth
		r.Post("/api/admin/login", h.handleLogin)
		r.Post("/api/admin/logout", h.handleLogout)

		// Admin API (protected)
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuthAPI)

			r.Post("/api/admin/periods/{id}/fraud-scan", h.handleFraudScan)
			r.Post("/api/admin/periods/{id}/publish", h.handlePublishResults)
			r.Get("/api/admin/periods/{id}/ranking-preview", h.handleRankingPreview)
			r.Get("/api/admin/votes/{id}/events", h.handleVoteEvents)
			r.Post("/api/admin/seed", h.handleSeedDemo)
		})
	})

	return r
}
