package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- Model types ---

// Channel is a broadcaster's persistent configuration for running live
// sessions. One channel per owner identity, created lazily on first
// configuration.
type Channel struct {
	ID           uuid.UUID `db:"id"`
	OwnerID      uuid.UUID `db:"owner_id"`
	Description  string    `db:"description"`
	Enabled      bool      `db:"enabled"`
	StreamSecret string    `db:"stream_secret"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Session is one bounded occurrence of going live on a channel. While live it
// is backed by exactly one room at the external provider, referenced by
// RoomName. The live→ended transition is terminal.
type Session struct {
	ID          uuid.UUID  `db:"id"`
	ChannelID   uuid.UUID  `db:"channel_id"`
	Title       string     `db:"title"`
	RoomName    string     `db:"room_name"`
	IsLive      bool       `db:"is_live"`
	ViewerCount int        `db:"viewer_count"`
	StartedAt   time.Time  `db:"started_at"`
	EndedAt     *time.Time `db:"ended_at"`
}

// Role is the capability a token grants inside a room.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

// AccessGrant is an ephemeral credential for joining a room. It is minted on
// demand and never persisted; expiry is the only revocation mechanism.
type AccessGrant struct {
	Token     string    `json:"token"`
	Endpoint  string    `json:"endpoint"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChannelStatus is the owner-facing view of a channel, including the live
// session (if any) with its best-effort cached viewer count.
type ChannelStatus struct {
	Channel       *Channel
	LiveSession   *Session
	FollowerCount int
}

// SessionEvent is published when a session starts or ends so downstream
// consumers (notification fan-out, analytics) can react. Delivery is
// best-effort.
type SessionEvent struct {
	Type      string    `json:"type"`
	ChannelID uuid.UUID `json:"channel_id"`
	SessionID uuid.UUID `json:"session_id"`
	RoomName  string    `json:"room_name"`
	At        time.Time `json:"at"`
}

const (
	EventSessionStarted = "session.started"
	EventSessionEnded   = "session.ended"
)

// --- Repository contracts ---

// ChannelRepository abstracts channel persistence.
type ChannelRepository interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Channel, error)
	GetByID(ctx context.Context, channelID uuid.UUID) (*Channel, error)

	// Upsert creates the channel for ownerID if it does not exist, otherwise
	// updates the description. streamSecret is only used on insert; the stored
	// secret is immutable afterwards.
	Upsert(ctx context.Context, ownerID uuid.UUID, description, streamSecret string) (*Channel, error)

	SetEnabled(ctx context.Context, ownerID uuid.UUID, enabled bool) (*Channel, error)
}

// SessionRepository abstracts session persistence. The store enforces the
// at-most-one-live-session-per-channel invariant via an atomic conditional
// insert: InsertLive must fail with ErrAlreadyLive when a live session for the
// channel already exists, even under concurrent callers.
type SessionRepository interface {
	InsertLive(ctx context.Context, channelID uuid.UUID, title, roomName string, startedAt time.Time) (*Session, error)
	GetLiveByChannel(ctx context.Context, channelID uuid.UUID) (*Session, error)
	GetLiveByRoomName(ctx context.Context, roomName string) (*Session, error)

	// EndLive atomically flips the channel's live session to ended. Returns
	// ErrNoActiveSession when there is nothing to end; a second call never
	// overwrites EndedAt.
	EndLive(ctx context.Context, channelID uuid.UUID, endedAt time.Time) (*Session, error)

	UpdateViewerCount(ctx context.Context, sessionID uuid.UUID, count int) error
	ListLive(ctx context.Context) ([]Session, error)
}

// FollowRepository abstracts the viewer→channel follow relation.
type FollowRepository interface {
	// Toggle flips the follow state and reports the resulting state.
	Toggle(ctx context.Context, followerID, channelID uuid.UUID) (following bool, err error)
	ListChannels(ctx context.Context, followerID uuid.UUID) ([]Channel, error)
	CountForChannel(ctx context.Context, channelID uuid.UUID) (int, error)
}

// --- External collaborators ---

// RoomProvider is the client for the external real-time media service. All
// calls may fail or time out independently of local state; a timeout is
// treated exactly like an explicit failure.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string) error

	// DeleteRoom is safe to call on an already-deleted or never-created room;
	// "not found" is treated as success.
	DeleteRoom(ctx context.Context, name string) error

	MintToken(ctx context.Context, room string, identity uuid.UUID, role Role, ttl time.Duration) (string, error)

	// Endpoint is the transport URL clients connect to with a minted token.
	Endpoint() string
}

// EventPublisher emits session lifecycle events for downstream subscribers.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event SessionEvent) error
}

// OrphanLedger records rooms that were created at the provider but whose
// session commit (or cleanup) failed, so an out-of-band sweeper can reconcile
// them.
type OrphanLedger interface {
	Record(ctx context.Context, roomName string) error
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, roomName string) error
}

// ViewerCountCache caches externally sourced per-session viewer counts.
// Values are best-effort and may be stale or absent.
type ViewerCountCache interface {
	Set(ctx context.Context, sessionID uuid.UUID, count int) error
	Get(ctx context.Context, sessionID uuid.UUID) (count int, ok bool, err error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}
