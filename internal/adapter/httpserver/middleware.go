package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stagecast-live/stagecast/internal/adapter/metrics"
	"github.com/stagecast-live/stagecast/internal/domain"
	"github.com/stagecast-live/stagecast/internal/platform/correlation"
	apperrors "github.com/stagecast-live/stagecast/internal/platform/errors"
)

const (
	sessionName   = "stagecast_session"
	identityKey   = "identity_id"
	ctxIdentityID = "identityID"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// requireAuth resolves the caller's identity from the signed session cookie.
// A missing or unresolvable identity is a uniform 401, regardless of whether
// the addressed resource exists.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("unauthorized")
		}

		raw, ok := sess.Values[identityKey].(string)
		if !ok {
			return apperrors.UnauthorizedError("unauthorized")
		}

		identityID, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.UnauthorizedError("unauthorized")
		}

		c.Set(ctxIdentityID, identityID)
		return next(c)
	}
}

// identityFromContext returns the identity set by requireAuth.
func identityFromContext(c echo.Context) (uuid.UUID, error) {
	id, ok := c.Get(ctxIdentityID).(uuid.UUID)
	if !ok {
		return uuid.Nil, apperrors.InternalError("identity missing from request context", nil)
	}
	return id, nil
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo's own errors (404s, rate limiter denials) keep their
			// status codes.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			metrics.HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if id, ok := c.Get(ctxIdentityID).(uuid.UUID); ok {
		attrs = append(attrs, "identity_id", id.String())
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound, apperrors.TypeUnauthorized:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "State conflict", attrs...)
	case apperrors.TypeOrphaned:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Orphaned external resource", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// mapDomainError translates domain sentinels into structured errors with the
// caller-facing taxonomy. State conflicts stay distinct and user-actionable.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrChannelNotFound):
		return apperrors.NotFoundError("channel not found")
	case errors.Is(err, domain.ErrRoomNotFound):
		return apperrors.NotFoundError("room not found")
	case errors.Is(err, domain.ErrChannelDisabled):
		return apperrors.ConflictError("channel is disabled, enable it before starting a session")
	case errors.Is(err, domain.ErrAlreadyLive):
		return apperrors.ConflictError("a session is already live, end it first")
	case errors.Is(err, domain.ErrNoActiveSession):
		return apperrors.ConflictError("no session is live")
	case errors.Is(err, domain.ErrOrphanedRoom):
		return apperrors.OrphanedError("session could not be committed and the allocated room leaked", err)
	case errors.Is(err, domain.ErrRoomProvider):
		return apperrors.ExternalError("room provider unavailable", err)
	default:
		return apperrors.InternalError("internal server error", err)
	}
}
