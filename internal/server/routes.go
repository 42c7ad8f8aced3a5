package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	v1 "github.com/kanbu/realtime/internal/api/v1"
	"github.com/kanbu/realtime/internal/server/middleware"
)

// routes mounts the full route tree:
//  1. Unauthenticated, rate limited auth endpoints.
//  2. Authenticated REST API for tasks, comments, subtasks and tags.
//  3. The websocket endpoint for the realtime sync layer.
func (s *Server) routes(ctx context.Context, corsHandler func(http.Handler) http.Handler) {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(chimw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(corsHandler)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, 5, 10))

			authConfig := huma.DefaultConfig("Kanbu Auth API", "1.0.0")
			authConfig.Servers = []*huma.Server{{URL: "/api/v1"}}
			authAPI := humachi.New(r, authConfig)
			v1.RegisterAuthRoutes(authAPI, s.auth)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(s.cfg.JWT.Secret))
			r.Use(middleware.RateLimitByIP(ctx, 100, 200))

			apiConfig := huma.DefaultConfig("Kanbu API", "1.0.0")
			apiConfig.Servers = []*huma.Server{{URL: "/api/v1"}}
			api := humachi.New(r, apiConfig)
			v1.RegisterTaskRoutes(api, s.store, s.broadcaster)
			v1.RegisterCommentRoutes(api, s.store, s.broadcaster)
			v1.RegisterSubtaskRoutes(api, s.store, s.broadcaster)
		})
	})

	s.router.Route("/ws", func(r chi.Router) {
		r.Use(middleware.Auth(s.cfg.JWT.Secret))
		r.Get("/", s.gateway.ServeWS)
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
