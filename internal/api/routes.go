package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes configures the API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Public routes
	r.Get("/", s.HandleRoot)
	r.Get("/health", s.HandleHealth)

	r.Post("/auth/login", s.HandleLogin)
	r.Post("/auth/refresh", s.HandleRefresh)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.HandleListDevices)
			r.Post("/", s.HandleCreateDevice)

			r.Route("/{mac}", func(r chi.Router) {
				r.Get("/", s.HandleGetDevice)
				r.Put("/", s.HandleUpdateDevice)
				r.Delete("/", s.HandleDeleteDevice)

				// Control
				r.Post("/connect", s.HandleConnect)
				r.Post("/disconnect", s.HandleDisconnect)
				r.Post("/open", s.HandleOpen)
				r.Post("/close", s.HandleClose)
				r.Post("/stop", s.HandleStop)
				r.Post("/favorite", s.HandleFavorite)
				r.Post("/position", s.HandlePosition)
				r.Post("/tilt", s.HandleTilt)
				r.Post("/speed", s.HandleSpeed)
				r.Get("/status", s.HandleStatus)
				r.Get("/state", s.HandleState)
			})
		})

		// Events
		r.Get("/events", s.HandleListEvents)
	})
}
