package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stagecast-live/stagecast/internal/domain"
	apperrors "github.com/stagecast-live/stagecast/internal/platform/errors"
)

type issueTokenRequest struct {
	Role string `json:"role"`
}

type issueTokenResponse struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

// handleIssueToken mints a room credential. A role mismatch never rejects:
// anyone with an identity gets into the room, but only the verified channel
// owner gets publish rights.
func (s *Server) handleIssueToken(c echo.Context) error {
	ctx := c.Request().Context()

	identityID, err := identityFromContext(c)
	if err != nil {
		return err
	}

	roomName := c.Param("room")
	if roomName == "" {
		return apperrors.ValidationError("room name is required")
	}

	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	requestedRole := domain.RoleViewer
	if req.Role == string(domain.RoleBroadcaster) {
		requestedRole = domain.RoleBroadcaster
	}

	grant, err := s.app.IssueToken(ctx, identityID, roomName, requestedRole)
	if err != nil {
		return mapDomainError(err)
	}

	resp := issueTokenResponse{
		Token:     grant.Token,
		Endpoint:  grant.Endpoint,
		Role:      string(grant.Role),
		ExpiresAt: grant.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
