package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"promos/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteScript moves delayed messages whose score is due onto the pending list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, payload in ipairs(due) do
	redis.call('ZREM', KEYS[1], payload)
	redis.call('RPUSH', KEYS[2], payload)
end
return #due
`)

const promoteBatch = 100

// RedisQueue keeps pending messages in a list and moves each received message to
// a processing list until it is acked. Delayed redeliveries wait in a sorted set
// scored by the unix millisecond they become visible.
type RedisQueue struct {
	client      redis.UniversalClient
	name        string
	pollTimeout time.Duration
}

type deadLetter struct {
	Message  Message   `json:"message"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func NewRedisQueue(client redis.UniversalClient, name string, pollTimeout time.Duration) *RedisQueue {
	if client == nil {
		panic("redis client is required")
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, name: name, pollTimeout: pollTimeout}
}

func (q *RedisQueue) pendingKey() string    { return q.name }
func (q *RedisQueue) processingKey() string { return q.name + ":processing" }
func (q *RedisQueue) delayedKey() string    { return q.name + ":delayed" }
func (q *RedisQueue) deadKey() string       { return q.name + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := q.client.RPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

func (q *RedisQueue) promote(ctx context.Context) error {
	now := time.Now().UnixMilli()
	err := promoteScript.Run(ctx, q.client, []string{q.delayedKey(), q.pendingKey()}, now, promoteBatch).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to promote delayed messages: %w", err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	if err := q.promote(ctx); err != nil {
		return nil, err
	}

	raw, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "LEFT", "RIGHT", q.pollTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Undecodable payloads can never succeed.
		decodeErr := fmt.Errorf("failed to decode message: %w", err)
		if err := q.bury(ctx, raw); err != nil {
			return nil, errors.Join(decodeErr, err)
		}
		return nil, decodeErr
	}
	return &Delivery{Message: msg, DeliveryCount: msg.DeliveryCount + 1, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey(), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", d.Message.ID, err)
	}
	return nil
}

// bury moves an undecodable payload from the processing list to the dead list.
func (q *RedisQueue) bury(ctx context.Context, raw string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		pipe.RPush(ctx, q.deadKey(), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter undecodable message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Redeliver(ctx context.Context, d *Delivery, lots []models.LotKey, delay time.Duration) error {
	next := Message{
		ID:            uuid.NewString(),
		Lots:          lots,
		DeliveryCount: d.DeliveryCount,
		EnqueuedAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if delay > 0 {
			visibleAt := time.Now().Add(delay).UnixMilli()
			pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(visibleAt), Member: payload})
		} else {
			pipe.RPush(ctx, q.pendingKey(), payload)
		}
		pipe.LRem(ctx, q.processingKey(), 1, d.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to redeliver message %s: %w", d.Message.ID, err)
	}
	return nil
}

func (q *RedisQueue) Dead(ctx context.Context, d *Delivery, reason string) error {
	payload, err := json.Marshal(deadLetter{Message: d.Message, Reason: reason, FailedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, q.deadKey(), payload)
		pipe.LRem(ctx, q.processingKey(), 1, d.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", d.Message.ID, err)
	}
	return nil
}

// Recover moves messages left in flight by a crashed consumer back to the
// pending list. The interrupted delivery counts toward the message's delivery
// count. It returns the number of messages moved.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	raws, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list in-flight messages: %w", err)
	}

	moved := 0
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			if err := q.bury(ctx, raw); err != nil {
				return moved, err
			}
			continue
		}
		msg.DeliveryCount++
		payload, err := json.Marshal(msg)
		if err != nil {
			return moved, fmt.Errorf("failed to encode message: %w", err)
		}

		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processingKey(), 1, raw)
			pipe.RPush(ctx, q.pendingKey(), payload)
			return nil
		})
		if err != nil {
			return moved, fmt.Errorf("failed to recover message %s: %w", msg.ID, err)
		}
		moved++
	}
	return moved, nil
}

// Stats returns the number of messages in each state.
func (q *RedisQueue) Stats(ctx context.Context) (Depth, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey())
	processing := pipe.LLen(ctx, q.processingKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Depth{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return Depth{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}
