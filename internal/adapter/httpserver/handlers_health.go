package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stagecast-live/stagecast/internal/platform/version"
)

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/healthz", s.handleLiveness)
	s.echo.GET("/readyz", s.handleReadiness)
}

func (s *Server) handleLiveness(c echo.Context) error {
	resp := map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"version": version.Get(),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx := c.Request().Context()

	checks := make(map[string]string, len(s.healthChecks))
	healthy := true
	for _, check := range s.healthChecks {
		if err := check.Check(ctx); err != nil {
			checks[check.Name] = err.Error()
			healthy = false
		} else {
			checks[check.Name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	if err := c.JSON(status, map[string]any{"healthy": healthy, "checks": checks}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
