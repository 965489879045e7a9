// Package httpserver exposes the service operations over HTTP via echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/stagecast-live/stagecast/internal/domain"
	"github.com/stagecast-live/stagecast/internal/platform/config"
)

// appService is the application layer surface the handlers depend on.
type appService interface {
	ConfigureChannel(ctx context.Context, ownerID uuid.UUID, description, suppliedSecret string) (*domain.Channel, error)
	GetChannelStatus(ctx context.Context, ownerID uuid.UUID) (*domain.ChannelStatus, error)
	ToggleChannelActive(ctx context.Context, ownerID uuid.UUID, desired bool) (*domain.Channel, error)
	StartSession(ctx context.Context, ownerID uuid.UUID, title string) (*domain.Session, error)
	EndSession(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error)
	IssueToken(ctx context.Context, requesterID uuid.UUID, roomName string, requestedRole domain.Role) (*domain.AccessGrant, error)
	ToggleFollow(ctx context.Context, followerID, channelID uuid.UUID) (bool, error)
	ListFollowedChannels(ctx context.Context, followerID uuid.UUID) ([]domain.Channel, error)
	RecordRoomStats(ctx context.Context, roomName string, participants int) error
	HandleRoomFinished(ctx context.Context, roomName string)
}

// HealthCheck is a named readiness probe.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		sessionStore: store,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
