package httpserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stagecast-live/stagecast/internal/domain"
	apperrors "github.com/stagecast-live/stagecast/internal/platform/errors"
)

const signatureHeader = "X-Stagecast-Signature"

const (
	eventParticipantJoined = "participant_joined"
	eventParticipantLeft   = "participant_left"
	eventRoomFinished      = "room_finished"
)

type roomEvent struct {
	Event        string `json:"event"`
	Room         string `json:"room"`
	Participants int    `json:"participants"`
}

// handleRoomEvents receives provider callbacks carrying room state the
// service does not own: participant counts and provider-side room closure.
// The payload is authenticated with an HMAC signature over the raw body.
func (s *Server) handleRoomEvents(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64*1024))
	if err != nil {
		return apperrors.ValidationError("failed to read request body")
	}

	if !s.verifyWebhookSignature(body, c.Request().Header.Get(signatureHeader)) {
		return apperrors.UnauthorizedError("invalid webhook signature")
	}

	var event roomEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apperrors.ValidationError("invalid webhook payload")
	}
	if event.Room == "" {
		return apperrors.ValidationError("room is required")
	}

	ctx := c.Request().Context()

	switch event.Event {
	case eventParticipantJoined, eventParticipantLeft:
		if err := s.app.RecordRoomStats(ctx, event.Room, event.Participants); err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				// Late callback for a room whose session already ended.
				slog.Debug("Dropping stats for unknown room", "room_name", event.Room)
				break
			}
			return mapDomainError(err)
		}
	case eventRoomFinished:
		s.app.HandleRoomFinished(ctx, event.Room)
	default:
		slog.Debug("Ignoring unknown room event", "event", event.Event, "room_name", event.Room)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) verifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.config.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
