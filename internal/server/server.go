package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/kanbu/realtime/internal/auth"
	"github.com/kanbu/realtime/internal/config"
	"github.com/kanbu/realtime/internal/realtime"
	"github.com/kanbu/realtime/internal/store/postgres"
	redisstore "github.com/kanbu/realtime/internal/store/redis"
)

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	store       *postgres.Store
	auth        *auth.Service
	pubsub      *redisstore.PubSub
	registry    *realtime.Registry
	broadcaster *realtime.Broadcaster
	gateway     *realtime.Gateway
	cfg         *config.Config
}

// New creates a Server with all routes wired. ctx bounds the lifetime of
// background work (relay subscriptions, rate limiter cleanup) and should
// outlive the server itself.
// pubsub may be nil; the sync layer then runs single-node.
func New(ctx context.Context, cfg *config.Config, store *postgres.Store, pubsub *redisstore.PubSub, authSvc *auth.Service) *Server {
	router := chi.NewRouter()

	registry := realtime.NewRegistry()
	var backend realtime.PubSub
	if pubsub != nil {
		backend = pubsub
	}
	broadcaster := realtime.NewBroadcaster(ctx, registry, backend)
	gateway := realtime.NewGateway(registry, broadcaster, cfg.Realtime.SendBuffer)

	s := &Server{
		router:      router,
		store:       store,
		auth:        authSvc,
		pubsub:      pubsub,
		registry:    registry,
		broadcaster: broadcaster,
		gateway:     gateway,
		cfg:         cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler

	s.routes(ctx, corsHandler)

	return s
}

// Broadcaster exposes the event fan-out for the API layer.
func (s *Server) Broadcaster() *realtime.Broadcaster {
	return s.broadcaster
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and tears down relay
// subscriptions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
