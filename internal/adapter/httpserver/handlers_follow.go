package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	apperrors "github.com/stagecast-live/stagecast/internal/platform/errors"
)

func (s *Server) handleToggleFollow(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	channelID, err := uuid.Parse(c.Param("channelID"))
	if err != nil {
		return apperrors.ValidationError("invalid channel ID").WithField("channel_id", c.Param("channelID"))
	}

	following, err := s.app.ToggleFollow(ctx, identityID, channelID)
	if err != nil {
		return mapDomainError(err)
	}

	if err := c.JSON(http.StatusOK, map[string]bool{"following": following}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListFollows(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	channels, err := s.app.ListFollowedChannels(ctx, identityID)
	if err != nil {
		return mapDomainError(err)
	}

	// Stream secrets never leave the owner's view, not even masked.
	type followedChannel struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Enabled     bool   `json:"enabled"`
	}
	resp := make([]followedChannel, 0, len(channels))
	for i := range channels {
		resp = append(resp, followedChannel{
			ID:          channels[i].ID.String(),
			Description: channels[i].Description,
			Enabled:     channels[i].Enabled,
		})
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
