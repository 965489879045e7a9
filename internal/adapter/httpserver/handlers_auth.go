package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	apperrors "github.com/stagecast-live/stagecast/internal/platform/errors"
)

type devSessionRequest struct {
	Identity string `json:"identity,omitempty"`
}

// handleDevSession issues an identity cookie without going through the real
// identity provider. Registered only outside production; in production the
// cookie is set by the upstream auth flow.
func (s *Server) handleDevSession(c echo.Context) error {
	var req devSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	identityID := uuid.New()
	if req.Identity != "" {
		parsed, err := uuid.Parse(req.Identity)
		if err != nil {
			return apperrors.ValidationError("identity must be a UUID")
		}
		identityID = parsed
	}

	sess, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		// A stale or differently keyed cookie; start fresh.
		sess.Values = make(map[any]any)
	}
	sess.Values[identityKey] = identityID.String()

	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"identity": identityID.String()}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
