package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stagecast-live/stagecast/internal/domain"
)

type FollowRepo struct {
	pool *pgxpool.Pool
}

func NewFollowRepo(pool *pgxpool.Pool) *FollowRepo {
	return &FollowRepo{pool: pool}
}

// Toggle flips the follow state in a single round trip: try to delete, insert
// when nothing was deleted.
func (r *FollowRepo) Toggle(ctx context.Context, followerID, channelID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM follows WHERE follower_id = $1 AND channel_id = $2", followerID, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle follow: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO follows (follower_id, channel_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		followerID, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to create follow: %w", err)
	}
	return true, nil
}

func (r *FollowRepo) ListChannels(ctx context.Context, followerID uuid.UUID) ([]domain.Channel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.owner_id, c.description, c.enabled, c.stream_secret, c.created_at, c.updated_at
		FROM follows f
		JOIN channels c ON c.id = f.channel_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC`,
		followerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followed channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan followed channel: %w", err)
		}
		channels = append(channels, *channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate followed channels: %w", err)
	}
	return channels, nil
}

func (r *FollowRepo) CountForChannel(ctx context.Context, channelID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT count(*) FROM follows WHERE channel_id = $1", channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return count, nil
}
