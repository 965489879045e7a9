package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stagecast-live/stagecast/internal/adapter/metrics"
	"github.com/stagecast-live/stagecast/internal/domain"
	"github.com/stagecast-live/stagecast/internal/platform/streamkey"
	"golang.org/x/sync/singleflight"
)

// Service orchestrates all use cases against the durable stores and the
// external room provider.
type Service struct {
	channels domain.ChannelRepository
	sessions domain.SessionRepository
	follows  domain.FollowRepository
	provider domain.RoomProvider
	ledger   domain.OrphanLedger
	viewers  domain.ViewerCountCache
	events   domain.EventPublisher
	clock    clockwork.Clock
	tokenTTL time.Duration

	// statusGroup collapses concurrent status reads per owner; dashboards
	// poll this endpoint and the fan-out is identical work.
	statusGroup singleflight.Group
}

// NewService creates the application layer service.
// events and viewers may be nil; both are best-effort collaborators.
func NewService(
	channels domain.ChannelRepository,
	sessions domain.SessionRepository,
	follows domain.FollowRepository,
	provider domain.RoomProvider,
	ledger domain.OrphanLedger,
	viewers domain.ViewerCountCache,
	events domain.EventPublisher,
	clock clockwork.Clock,
	tokenTTL time.Duration,
) *Service {
	return &Service{
		channels: channels,
		sessions: sessions,
		follows:  follows,
		provider: provider,
		ledger:   ledger,
		viewers:  viewers,
		events:   events,
		clock:    clock,
		tokenTTL: tokenTTL,
	}
}

// ConfigureChannel creates the caller's channel on first use or updates its
// description. The stream secret is generated exactly once; a caller-supplied
// secret is honored only at creation time.
func (s *Service) ConfigureChannel(ctx context.Context, ownerID uuid.UUID, description, suppliedSecret string) (*domain.Channel, error) {
	secret := suppliedSecret
	if secret == "" {
		var err error
		secret, err = streamkey.Generate()
		if err != nil {
			return nil, err
		}
	}

	channel, err := s.channels.Upsert(ctx, ownerID, description, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to configure channel: %w", err)
	}
	return channel, nil
}

// GetChannelStatus returns the owner's channel together with its live session
// (if any) and follower count. The viewer count on the live session is filled
// from the cache when present.
func (s *Service) GetChannelStatus(ctx context.Context, ownerID uuid.UUID) (*domain.ChannelStatus, error) {
	v, err, _ := s.statusGroup.Do(ownerID.String(), func() (any, error) {
		return s.getChannelStatus(ctx, ownerID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ChannelStatus), nil
}

func (s *Service) getChannelStatus(ctx context.Context, ownerID uuid.UUID) (*domain.ChannelStatus, error) {
	channel, err := s.channels.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	status := &domain.ChannelStatus{Channel: channel}

	live, err := s.sessions.GetLiveByChannel(ctx, channel.ID)
	switch {
	case err == nil:
		if s.viewers != nil {
			if count, ok, cacheErr := s.viewers.Get(ctx, live.ID); cacheErr != nil {
				slog.Warn("Viewer count cache read failed", "session_id", live.ID.String(), "error", cacheErr)
			} else if ok {
				live.ViewerCount = count
			}
		}
		status.LiveSession = live
	case errors.Is(err, domain.ErrNoActiveSession):
		// idle channel
	default:
		return nil, err
	}

	followers, err := s.follows.CountForChannel(ctx, channel.ID)
	if err != nil {
		slog.Warn("Follower count lookup failed", "channel_id", channel.ID.String(), "error", err)
	} else {
		status.FollowerCount = followers
	}

	return status, nil
}

// ToggleChannelActive flips the enabled flag. It deliberately does not touch
// any live session: disabling a channel blocks new starts but lets an
// in-progress session run until it is ended separately.
func (s *Service) ToggleChannelActive(ctx context.Context, ownerID uuid.UUID, desired bool) (*domain.Channel, error) {
	return s.channels.SetEnabled(ctx, ownerID, desired)
}

// StartSession allocates a room at the provider and commits a live session
// pointing at it. The room is created before the durable commit; on commit
// failure the room is deleted as compensation. The session store's
// conditional insert is the final arbiter of the one-live-session invariant:
// concurrent starts resolve to one success and AlreadyLive for the rest.
func (s *Service) StartSession(ctx context.Context, ownerID uuid.UUID, title string) (*domain.Session, error) {
	channel, err := s.channels.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			metrics.SessionStartFailuresTotal.WithLabelValues("channel_not_found").Inc()
		}
		return nil, err
	}

	if !channel.Enabled {
		metrics.SessionStartFailuresTotal.WithLabelValues("channel_disabled").Inc()
		return nil, domain.ErrChannelDisabled
	}

	// Fast-path check; the conditional insert below closes the race.
	_, err = s.sessions.GetLiveByChannel(ctx, channel.ID)
	if err == nil {
		metrics.SessionStartFailuresTotal.WithLabelValues("already_live").Inc()
		return nil, domain.ErrAlreadyLive
	}
	if !errors.Is(err, domain.ErrNoActiveSession) {
		return nil, err
	}

	roomName := newRoomName(channel.ID)

	if err := s.provider.CreateRoom(ctx, roomName); err != nil {
		metrics.SessionStartFailuresTotal.WithLabelValues("provider").Inc()
		return nil, fmt.Errorf("%w: create room %s: %v", domain.ErrRoomProvider, roomName, err)
	}

	// From here the room exists externally. The commit-or-compensate sequence
	// runs to completion even if the caller goes away.
	commitCtx := context.WithoutCancel(ctx)

	session, err := s.sessions.InsertLive(commitCtx, channel.ID, title, roomName, s.clock.Now())
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyLive) {
			// Lost the race to a concurrent start; the room we allocated is
			// unused and must go.
			metrics.SessionStartFailuresTotal.WithLabelValues("already_live").Inc()
			s.compensateRoom(commitCtx, roomName)
			return nil, domain.ErrAlreadyLive
		}

		metrics.SessionStartFailuresTotal.WithLabelValues("store").Inc()
		if delErr := s.provider.DeleteRoom(commitCtx, roomName); delErr != nil {
			s.recordOrphan(commitCtx, roomName, err, delErr)
			return nil, fmt.Errorf("%w: %s (commit failed: %v, cleanup failed: %v)", domain.ErrOrphanedRoom, roomName, err, delErr)
		}
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}

	metrics.SessionsStartedTotal.Inc()
	slog.Info("Session started",
		"channel_id", channel.ID.String(),
		"session_id", session.ID.String(),
		"room_name", roomName)

	s.publishEvent(ctx, domain.EventSessionStarted, channel, session)

	return session, nil
}

// EndSession flips the live session to ended, then best-effort deletes the
// backing room. The store write is the authoritative "session over" signal;
// a failed room deletion is a resource leak handed to the ledger, never a
// failure of the call.
func (s *Service) EndSession(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error) {
	channel, err := s.channels.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.EndLive(ctx, channel.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	metrics.SessionsEndedTotal.Inc()
	slog.Info("Session ended",
		"channel_id", channel.ID.String(),
		"session_id", session.ID.String(),
		"room_name", session.RoomName)

	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.provider.DeleteRoom(cleanupCtx, session.RoomName); err != nil {
		metrics.RoomDeleteFailuresTotal.Inc()
		slog.Warn("Room deletion failed after session end, ledgering for sweep",
			"session_id", session.ID.String(),
			"room_name", session.RoomName,
			"error", err)
		if ledgerErr := s.ledger.Record(cleanupCtx, session.RoomName); ledgerErr != nil {
			slog.Error("Failed to ledger leaked room",
				"room_name", session.RoomName,
				"error", ledgerErr)
		}
	}

	if s.viewers != nil {
		if err := s.viewers.Delete(cleanupCtx, session.ID); err != nil {
			slog.Warn("Viewer count cache cleanup failed", "session_id", session.ID.String(), "error", err)
		}
	}

	s.publishEvent(ctx, domain.EventSessionEnded, channel, session)

	return session, nil
}

// IssueToken resolves the caller's true capability for the room and mints a
// scoped credential. A broadcaster role is granted only to the verified
// channel owner; everyone else is silently downgraded to viewer. The
// caller-facing contract is "you always get into the room, only the owner can
// publish."
func (s *Service) IssueToken(ctx context.Context, requesterID uuid.UUID, roomName string, requestedRole domain.Role) (*domain.AccessGrant, error) {
	session, err := s.sessions.GetLiveByRoomName(ctx, roomName)
	if err != nil {
		return nil, err
	}

	channel, err := s.channels.GetByID(ctx, session.ChannelID)
	if err != nil {
		return nil, err
	}

	role := domain.RoleViewer
	if requestedRole == domain.RoleBroadcaster && channel.OwnerID == requesterID {
		role = domain.RoleBroadcaster
	}

	token, err := s.provider.MintToken(ctx, roomName, requesterID, role, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: mint token for room %s: %v", domain.ErrRoomProvider, roomName, err)
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(role)).Inc()

	return &domain.AccessGrant{
		Token:     token,
		Endpoint:  s.provider.Endpoint(),
		Role:      role,
		ExpiresAt: s.clock.Now().Add(s.tokenTTL),
	}, nil
}

// ToggleFollow flips the caller's follow state for a channel.
func (s *Service) ToggleFollow(ctx context.Context, followerID, channelID uuid.UUID) (bool, error) {
	if _, err := s.channels.GetByID(ctx, channelID); err != nil {
		return false, err
	}
	return s.follows.Toggle(ctx, followerID, channelID)
}

// ListFollowedChannels returns the channels the caller follows.
func (s *Service) ListFollowedChannels(ctx context.Context, followerID uuid.UUID) ([]domain.Channel, error) {
	return s.follows.ListChannels(ctx, followerID)
}

// RecordRoomStats stores a provider-reported participant count for the live
// session backing roomName. Counts are best-effort external state: the cache
// always gets the value, the session row is updated opportunistically.
func (s *Service) RecordRoomStats(ctx context.Context, roomName string, participants int) error {
	if participants < 0 {
		participants = 0
	}

	session, err := s.sessions.GetLiveByRoomName(ctx, roomName)
	if err != nil {
		return err
	}

	if s.viewers != nil {
		if err := s.viewers.Set(ctx, session.ID, participants); err != nil {
			slog.Warn("Viewer count cache write failed", "session_id", session.ID.String(), "error", err)
		}
	}

	if err := s.sessions.UpdateViewerCount(ctx, session.ID, participants); err != nil {
		slog.Warn("Viewer count persist failed", "session_id", session.ID.String(), "error", err)
	}

	return nil
}

// HandleRoomFinished records that the provider closed a room on its own. The
// local session stays authoritative: divergence is logged for reconciliation,
// not auto-healed.
func (s *Service) HandleRoomFinished(ctx context.Context, roomName string) {
	session, err := s.sessions.GetLiveByRoomName(ctx, roomName)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			// Room already ended locally; nothing diverged.
			return
		}
		slog.Warn("Room finished lookup failed", "room_name", roomName, "error", err)
		return
	}

	slog.Error("Provider closed a room while its session is still live",
		"room_name", roomName,
		"session_id", session.ID.String(),
		"channel_id", session.ChannelID.String())
}

func (s *Service) compensateRoom(ctx context.Context, roomName string) {
	if err := s.provider.DeleteRoom(ctx, roomName); err != nil {
		metrics.RoomDeleteFailuresTotal.Inc()
		slog.Error("Compensating room deletion failed, ledgering",
			"room_name", roomName,
			"error", err)
		if ledgerErr := s.ledger.Record(ctx, roomName); ledgerErr != nil {
			slog.Error("Failed to ledger orphan room", "room_name", roomName, "error", ledgerErr)
		}
	}
}

func (s *Service) recordOrphan(ctx context.Context, roomName string, commitErr, cleanupErr error) {
	metrics.OrphanedRoomsTotal.Inc()
	slog.Error("Orphaned room: commit and compensation both failed",
		"room_name", roomName,
		"commit_error", commitErr,
		"cleanup_error", cleanupErr)
	if err := s.ledger.Record(ctx, roomName); err != nil {
		slog.Error("Failed to ledger orphan room", "room_name", roomName, "error", err)
	}
}

func (s *Service) publishEvent(ctx context.Context, eventType string, channel *domain.Channel, session *domain.Session) {
	if s.events == nil {
		return
	}
	event := domain.SessionEvent{
		Type:      eventType,
		ChannelID: channel.ID,
		SessionID: session.ID,
		RoomName:  session.RoomName,
		At:        s.clock.Now(),
	}
	if err := s.events.PublishSessionEvent(ctx, event); err != nil {
		slog.Warn("Session event publish failed",
			"type", eventType,
			"session_id", session.ID.String(),
			"error", err)
	}
}

// newRoomName derives a unique room name from the channel identity plus a
// random salt, so every session gets a fresh room.
func newRoomName(channelID uuid.UUID) string {
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("room-%s-%s", shortID(channelID), salt)
}

func shortID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
