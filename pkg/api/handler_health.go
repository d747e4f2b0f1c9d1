package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/inquiryos/inquiryos/pkg/config"
)

// healthHandler handles GET /health.
// Checks only the service's own database. External backends (search,
// LLM) are excluded so an unhealthy upstream cannot get the process
// restarted by its supervisor.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if s.dbClient != nil {
		if err := s.dbClient.DB().PingContext(reqCtx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
				Status:  "unhealthy",
				Version: config.APIVersion,
			})
		}
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "ok",
		Version: config.APIVersion,
	})
}

// pingHandler handles GET /api/ping.
func (s *Server) pingHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &PingResponse{Message: "pong"})
}
