package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stagecast-live/stagecast/internal/domain"
	apperrors "github.com/stagecast-live/stagecast/internal/platform/errors"
	"github.com/stagecast-live/stagecast/internal/platform/streamkey"
)

type channelResponse struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Enabled      bool      `json:"enabled"`
	StreamSecret string    `json:"stream_secret"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toChannelResponse(c *domain.Channel, maskSecret bool) channelResponse {
	secret := c.StreamSecret
	if maskSecret {
		secret = streamkey.Mask(secret)
	}
	return channelResponse{
		ID:           c.ID.String(),
		Description:  c.Description,
		Enabled:      c.Enabled,
		StreamSecret: secret,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type configureChannelRequest struct {
	Description  string `json:"description"`
	StreamSecret string `json:"stream_secret,omitempty"`
}

func (s *Server) handleConfigureChannel(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	var req configureChannelRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(req.Description) > 500 {
		return apperrors.ValidationError("description must be at most 500 characters")
	}

	channel, err := s.app.ConfigureChannel(ctx, identityID, req.Description, req.StreamSecret)
	if err != nil {
		return mapDomainError(err)
	}

	// The full secret is returned on configuration only; status reads mask it.
	if err := c.JSON(http.StatusOK, toChannelResponse(channel, false)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type channelStatusResponse struct {
	Channel       channelResponse  `json:"channel"`
	LiveSession   *sessionResponse `json:"live_session,omitempty"`
	FollowerCount int              `json:"follower_count"`
}

func (s *Server) handleGetChannel(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	status, err := s.app.GetChannelStatus(ctx, identityID)
	if err != nil {
		return mapDomainError(err)
	}

	resp := channelStatusResponse{
		Channel:       toChannelResponse(status.Channel, true),
		FollowerCount: status.FollowerCount,
	}
	if status.LiveSession != nil {
		sessionResp := toSessionResponse(status.LiveSession)
		resp.LiveSession = &sessionResp
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type toggleChannelActiveRequest struct {
	Active *bool `json:"active"`
}

// handleToggleChannelActive flips the enabled flag only. A live session keeps
// running when the channel is disabled; it has to be ended separately.
func (s *Server) handleToggleChannelActive(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	var req toggleChannelActiveRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Active == nil {
		return apperrors.ValidationError("active is required")
	}

	channel, err := s.app.ToggleChannelActive(ctx, identityID, *req.Active)
	if err != nil {
		return mapDomainError(err)
	}

	if err := c.JSON(http.StatusOK, toChannelResponse(channel, true)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
