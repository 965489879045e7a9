package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stagecast-live/stagecast/internal/adapter/metrics"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(ErrorHandlingMiddleware())

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	if s.config.AppEnv != "production" {
		s.echo.POST("/auth/dev-session", s.handleDevSession)
	}

	tokenLimiter := newRateLimiter(s.config.TokenRatePerSecond, s.config.TokenRateBurst)

	api := s.echo.Group("/api", s.requireAuth)
	api.PUT("/channel", s.handleConfigureChannel)
	api.GET("/channel", s.handleGetChannel)
	api.POST("/channel/active", s.handleToggleChannelActive)
	api.POST("/sessions", s.handleStartSession)
	api.DELETE("/sessions/current", s.handleEndSession)
	api.POST("/rooms/:room/token", s.handleIssueToken, tokenLimiter)
	api.POST("/follows/:channelID", s.handleToggleFollow)
	api.GET("/follows", s.handleListFollows)

	s.echo.POST("/webhooks/room-events", s.handleRoomEvents)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}
