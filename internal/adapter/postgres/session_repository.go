package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stagecast-live/stagecast/internal/domain"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = "id, channel_id, title, room_name, is_live, viewer_count, started_at, ended_at"

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.ChannelID, &s.Title, &s.RoomName, &s.IsLive, &s.ViewerCount, &s.StartedAt, &s.EndedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertLive commits a new live session. The partial unique index on
// (channel_id) WHERE is_live makes this the atomic check-and-commit: a
// concurrent live session surfaces as ErrAlreadyLive, never as two live rows.
func (r *SessionRepo) InsertLive(ctx context.Context, channelID uuid.UUID, title, roomName string, startedAt time.Time) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sessions (channel_id, title, room_name, is_live, started_at)
		VALUES ($1, $2, $3, true, $4)
		RETURNING `+sessionColumns,
		channelID, title, roomName, startedAt)

	session, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err, "sessions_one_live_per_channel") {
			return nil, domain.ErrAlreadyLive
		}
		return nil, fmt.Errorf("failed to insert live session: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) GetLiveByChannel(ctx context.Context, channelID uuid.UUID) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE channel_id = $1 AND is_live", channelID)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get live session: %w", err)
	}
	return session, nil
}

// GetLiveByRoomName resolves a live session by its room. Ended rooms resolve
// to ErrRoomNotFound so no tokens can be issued for them.
func (r *SessionRepo) GetLiveByRoomName(ctx context.Context, roomName string) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE room_name = $1 AND is_live", roomName)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by room name: %w", err)
	}
	return session, nil
}

// EndLive flips the channel's live session to ended. The WHERE clause makes
// the read-then-write atomic per row; a second call matches nothing and
// EndedAt is set exactly once.
func (r *SessionRepo) EndLive(ctx context.Context, channelID uuid.UUID, endedAt time.Time) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions SET is_live = false, ended_at = $2
		WHERE channel_id = $1 AND is_live
		RETURNING `+sessionColumns,
		channelID, endedAt)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to end live session: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) UpdateViewerCount(ctx context.Context, sessionID uuid.UUID, count int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE sessions SET viewer_count = $2 WHERE id = $1", sessionID, count)
	if err != nil {
		return fmt.Errorf("failed to update viewer count: %w", err)
	}
	return nil
}

func (r *SessionRepo) ListLive(ctx context.Context) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE is_live ORDER BY started_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan live session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate live sessions: %w", err)
	}
	return sessions, nil
}
