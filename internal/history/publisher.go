// internal/history/publisher.go

// Package history ships game result records to a Redis queue, from which the
// historian binary drains them into Postgres. Publishing is best-effort: a
// failed push is logged and dropped, never surfaced to gameplay.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list (queue) name for result records.
var DefaultQueueName = "sketchdash_results"

// ResultRecord holds the minimal info the historian needs to persist one
// game outcome event.
type ResultRecord struct {
	SessionID uuid.UUID      `json:"session_id"`
	Kind      string         `json:"kind"` // "round_end" or "game_end"
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
}

// Publisher pushes result records onto the queue.
type Publisher struct {
	rdb    *redis.Client
	queue  string
	logger *logrus.Logger
}

// NewPublisher connects a Redis client and verifies it with a ping.
func NewPublisher(addr string, db int, queue string, logger *logrus.Logger) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	if logger == nil {
		logger = logrus.New()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Publisher{rdb: rdb, queue: queue, logger: logger}, nil
}

// Record implements the game session's recorder hook. Errors are logged, not
// returned; the caller is mid-game and cannot do anything about them.
func (p *Publisher) Record(kind string, sessionID uuid.UUID, payload map[string]any) {
	record := ResultRecord{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.publish(ctx, record); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"kind":       kind,
		}).Warn("failed to publish result record")
	}
}

// publish serializes the record to JSON, then pushes it to the Redis queue.
func (p *Publisher) publish(ctx context.Context, record ResultRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ResultRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
