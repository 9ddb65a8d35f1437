package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foldershare/folderd/internal/components/api"
)

// routes assembles the full router. Health and registration are public;
// everything else sits behind basic authentication.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/api/healthz", api.HealthHandler)
	r.Post("/api/users", s.usersHandler.HandleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Route("/api/folders", s.folderHandler.Routes)
		r.Route("/api/invites", s.inviteHandler.Routes)
	})

	return r
}
