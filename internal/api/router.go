package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	// Authenticated inside the handler so a bad token never upgrades.
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", s.handleListRooms)
				r.Post("/", s.handleCreateRoom)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRoom)
					r.Put("/", s.handleUpdateRoom)
					r.Delete("/", s.handleDeleteRoom)
					r.Get("/devices", s.handleListRoomDevices)
				})
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Put("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/status", s.handleGetDeviceStatus)
					r.Post("/control", s.handleControlDevice)
					r.Post("/toggle", s.handleToggleDevice)
				})
			})

			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", s.handleListSchedules)
				r.Post("/", s.handleCreateSchedule)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetSchedule)
					r.Put("/", s.handleUpdateSchedule)
					r.Delete("/", s.handleDeleteSchedule)
					r.Post("/toggle", s.handleToggleSchedule)
				})
			})

			r.Route("/scenes", func(r chi.Router) {
				r.Get("/", s.handleListScenes)
				r.Post("/", s.handleCreateScene)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetScene)
					r.Put("/", s.handleUpdateScene)
					r.Delete("/", s.handleDeleteScene)
					r.Post("/execute", s.handleExecuteScene)
				})
			})

			r.Route("/power", func(r chi.Router) {
				r.Get("/summary", s.handlePowerSummary)
				r.Get("/room/{roomId}", s.handleRoomPower)
				r.Route("/{deviceId}", func(r chi.Router) {
					r.Get("/history", s.handlePowerHistory)
					r.Get("/hourly", s.handlePowerHourly)
					r.Get("/daily", s.handlePowerDaily)
					r.Get("/latest", s.handlePowerLatest)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := s.broker != nil && s.broker.IsConnected()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      s.now().UTC().Format(time.RFC3339),
		"version":        s.version,
		"mqtt_connected": connected,
	})
}
