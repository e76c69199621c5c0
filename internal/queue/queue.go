// Package queue is the work queue the expiration sweeper consumes. Delivery is
// at-least-once: a message stays in flight until it is acked, redelivered with
// a higher delivery count, or moved to the dead list.
package queue

import (
	"context"
	"time"

	"promos/internal/models"

	"github.com/google/uuid"
)

// Message is one batch of lots to expire.
type Message struct {
	ID   string          `json:"id"`
	Lots []models.LotKey `json:"lots"`
	// DeliveryCount is the number of times the lots were already delivered.
	DeliveryCount int       `json:"delivery_count"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// NewMessage creates a first-delivery message for lots.
func NewMessage(lots []models.LotKey) Message {
	return Message{
		ID:         uuid.NewString(),
		Lots:       lots,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Delivery is a received message.
type Delivery struct {
	Message Message
	// DeliveryCount is 1 on the first delivery.
	DeliveryCount int

	raw string
}

// Depth is the number of messages in each state.
type Depth struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Backlog is the number of messages not yet settled.
func (d Depth) Backlog() int64 {
	return d.Pending + d.Processing + d.Delayed
}

// Queue is the consumed work queue boundary.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	// Receive waits for the next message. It returns nil, nil when nothing
	// arrived before the poll timeout.
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Redeliver acks d and enqueues lots as a new message that keeps d's
	// delivery count. The message becomes visible to Receive after delay.
	Redeliver(ctx context.Context, d *Delivery, lots []models.LotKey, delay time.Duration) error
	// Dead acks d and keeps it aside with reason for manual reconciliation.
	Dead(ctx context.Context, d *Delivery, reason string) error
}
