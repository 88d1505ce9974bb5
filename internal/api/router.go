/**
 * @description
 * This file sets up the HTTP router for the Needix backend using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the Needix routes.
func NewRouter(h *Handler, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Needix backend is healthy"))
	})

	// Protected routes that require authentication. The dispatch endpoint is
	// hit by the external cron trigger with a service token.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Route("/api", func(r chi.Router) {
			r.Get("/subscriptions/detect", h.handleDetect)
			r.Post("/reminders/snapshot", h.handleUpsertSnapshot)
			r.Post("/reminders/dispatch", h.handleDispatch)
			r.Post("/notifications/subscribe", h.handleSubscribePush)
			r.Post("/notifications/send", h.handleSendNotification)
		})
	})

	return r
}
