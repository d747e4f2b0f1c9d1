package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/inquiryos/inquiryos/pkg/config"
	"github.com/inquiryos/inquiryos/pkg/database"
	"github.com/inquiryos/inquiryos/pkg/pipeline"
	"github.com/inquiryos/inquiryos/pkg/services"
)

// allowedOrigins lists the browser origins permitted to call the API.
// Vite's dev server default port.
var allowedOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// Server is the HTTP front door. Handlers stay thin: bind, validate,
// delegate to the run service or the pipeline orchestrator, map errors.
type Server struct {
	cfg          *config.Settings
	dbClient     *database.Client
	runs         *services.RunService
	orchestrator *pipeline.Orchestrator

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg *config.Settings, dbClient *database.Client, runs *services.RunService, orchestrator *pipeline.Orchestrator) *Server {
	s := &Server{
		cfg:          cfg,
		dbClient:     dbClient,
		runs:         runs,
		orchestrator: orchestrator,
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(corsMiddleware(allowedOrigins))

	e.GET("/health", s.healthHandler)
	e.GET("/api/ping", s.pingHandler)

	e.POST("/api/v1/research-runs", s.createRunHandler)
	e.GET("/api/v1/research-runs", s.listRunsHandler)
	e.GET("/api/v1/research-runs/:id", s.getRunHandler)
	e.GET("/api/v1/research-runs/:id/detail", s.runDetailHandler)
	e.GET("/api/v1/research-runs/:id/state", s.runStateHandler)
	e.POST("/api/v1/research-runs/:id/search-dummy", s.searchDummyHandler)
	e.POST("/api/v1/research-runs/:id/read-dummy", s.readDummyHandler)
	e.POST("/api/v1/research-runs/:id/synthesize-dummy", s.synthesizeDummyHandler)
	e.POST("/api/v1/research-runs/:id/execute", s.executeRunHandler)

	s.echo = e
	return s
}

// Start runs the HTTP server on addr. Blocks until the server exits;
// returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-bound listener. Tests use this to
// run on a random port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight
// requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
