// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/handler"
	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/middleware"
	"ColdChainAPI/internal/repository"
	"ColdChainAPI/internal/websocket"

	"github.com/gorilla/mux"
)

type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        *config.Config
	log        *logger.Logger
}

func New(cfg *config.Config, log *logger.Logger) *Server {
	router := mux.NewRouter()

	server := &Server{
		router: router,
		cfg:    cfg,
		log:    log,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		},
	}

	return server
}

// RegisterHandlers wires three surfaces: the tenant API (API key or JWT),
// machine webhooks (shared secret), and the unauthenticated health probe.
func (s *Server) RegisterHandlers(
	tenants *repository.TenantRepository,
	hub *websocket.Hub,
	ingestHandler *handler.IngestHandler,
	uplinkHandler *handler.UplinkHandler,
	alertHandler *handler.AlertHandler,
	unitHandler *handler.UnitHandler,
	auditHandler *handler.AuditHandler,
	callbackHandler *handler.CallbackHandler,
	healthHandler *handler.HealthHandler,
) {
	s.router.Use(middleware.RequestLogger(s.log))
	s.router.Use(middleware.CORS(s.cfg.Security.CORSAllowedOrigins, s.cfg.Security.CORSAllowedMethods))
	s.router.Use(middleware.Recovery(s.log))

	if s.cfg.Security.EnableRateLimit {
		s.router.Use(middleware.RateLimit(s.cfg.Security.RateLimitPerMinute))
	}

	tenantAuth := middleware.TenantAuth(tenants, s.cfg.Security.JWTSecret, s.cfg.Security.APIKeyHeader, s.log)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(tenantAuth)

	ingestHandler.RegisterRoutes(api)
	alertHandler.RegisterRoutes(api)
	unitHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)

	hooks := s.router.PathPrefix("/api/v1").Subrouter()
	hooks.Use(middleware.UplinkAuth(s.cfg.Security.UplinkSharedSecret))

	uplinkHandler.RegisterRoutes(hooks)
	callbackHandler.RegisterRoutes(hooks)

	ws := s.router.PathPrefix("/ws").Subrouter()
	ws.Use(tenantAuth)
	ws.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		organizationID, ok := middleware.OrganizationFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		websocket.ServeWs(hub, organizationID, w, r, s.log)
	}).Methods("GET")

	healthHandler.RegisterRoutes(s.router)

	s.log.Info("All handlers registered")
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}
