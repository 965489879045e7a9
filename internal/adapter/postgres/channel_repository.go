package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stagecast-live/stagecast/internal/domain"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

const channelColumns = "id, owner_id, description, enabled, stream_secret, created_at, updated_at"

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var c domain.Channel
	err := row.Scan(&c.ID, &c.OwnerID, &c.Description, &c.Enabled, &c.StreamSecret, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChannelRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Channel, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE owner_id = $1", ownerID)

	channel, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel by owner: %w", err)
	}
	return channel, nil
}

func (r *ChannelRepo) GetByID(ctx context.Context, channelID uuid.UUID) (*domain.Channel, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE id = $1", channelID)

	channel, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel by ID: %w", err)
	}
	return channel, nil
}

// Upsert inserts the channel on first configuration. On conflict only the
// description changes; the stored stream secret is immutable.
func (r *ChannelRepo) Upsert(ctx context.Context, ownerID uuid.UUID, description, streamSecret string) (*domain.Channel, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO channels (owner_id, description, stream_secret)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE
		SET description = EXCLUDED.description, updated_at = now()
		RETURNING `+channelColumns,
		ownerID, description, streamSecret)

	channel, err := scanChannel(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert channel: %w", err)
	}
	return channel, nil
}

func (r *ChannelRepo) SetEnabled(ctx context.Context, ownerID uuid.UUID, enabled bool) (*domain.Channel, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE channels SET enabled = $2, updated_at = now()
		WHERE owner_id = $1
		RETURNING `+channelColumns,
		ownerID, enabled)

	channel, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set channel enabled: %w", err)
	}
	return channel, nil
}
