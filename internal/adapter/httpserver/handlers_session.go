package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stagecast-live/stagecast/internal/domain"
	apperrors "github.com/stagecast-live/stagecast/internal/platform/errors"
)

type sessionResponse struct {
	ID          string     `json:"id"`
	ChannelID   string     `json:"channel_id"`
	Title       string     `json:"title"`
	RoomName    string     `json:"room_name"`
	IsLive      bool       `json:"is_live"`
	ViewerCount int        `json:"viewer_count"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:          s.ID.String(),
		ChannelID:   s.ChannelID.String(),
		Title:       s.Title,
		RoomName:    s.RoomName,
		IsLive:      s.IsLive,
		ViewerCount: s.ViewerCount,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
}

type startSessionRequest struct {
	Title string `json:"title,omitempty"`
}

func (s *Server) handleStartSession(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(req.Title) > 200 {
		return apperrors.ValidationError("title must be at most 200 characters")
	}

	session, err := s.app.StartSession(ctx, identityID, req.Title)
	if err != nil {
		return mapDomainError(err)
	}

	if err := c.JSON(http.StatusCreated, toSessionResponse(session)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleEndSession(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	session, err := s.app.EndSession(ctx, identityID)
	if err != nil {
		return mapDomainError(err)
	}

	if err := c.JSON(http.StatusOK, toSessionResponse(session)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
