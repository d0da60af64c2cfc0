package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-settings/internal/auth"
)

// buildRouter mounts the API under /api/v1. Everything except /health
// passes authMiddleware, then a per-route permission check.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.requestIDMiddleware,
		s.accessLogMiddleware,
		s.recoverMiddleware,
		s.corsMiddleware,
		s.limitBodyMiddleware,
	)

	read := s.requirePermission(auth.PermSettingsRead)
	write := s.requirePermission(auth.PermSettingsWrite)
	restore := s.requirePermission(auth.PermSettingsRestore)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(read).Get("/metrics", s.handleMetrics)
			r.With(read).Get("/ws", s.handleWebSocket)

			r.Route("/settings", func(r chi.Router) {
				r.With(read).Get("/", s.handleListSettings)
				r.With(write).Patch("/", s.handlePatchSettings)

				// {key} also accepts a numeric id.
				r.Route("/{key}", func(r chi.Router) {
					r.With(read).Get("/", s.handleGetSetting)
					r.With(read).Get("/history", s.handleSettingHistory)
					r.With(write).Put("/", s.handleSetValue)
					r.With(restore).Put("/default", s.handleSetDefault)
					r.With(restore).Post("/restore", s.handleRestoreSetting)
				})
			})

			// Outside /settings, where a setting key could shadow them.
			r.With(restore).Post("/actions/restore", s.handleRestoreAll)
			r.With(write).Post("/actions/clear-changed", s.handleClearChanged)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.version})
}
