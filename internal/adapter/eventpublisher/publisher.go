// Package eventpublisher emits session lifecycle events on a Redis channel
// for downstream subscribers (notification fan-out, analytics).
package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stagecast-live/stagecast/internal/domain"
)

const eventChannel = "stagecast:session-events"

// Publisher implements domain.EventPublisher over Redis pub/sub.
type Publisher struct {
	rdb *goredis.Client
}

func New(rdb *goredis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	if err := p.rdb.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}
