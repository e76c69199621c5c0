package queue

import (
	"context"
	"sync"
	"time"

	"promos/internal/models"

	"github.com/google/uuid"
)

type delayedMessage struct {
	msg       Message
	visibleAt time.Time
}

// MemoryQueue is an in-process Queue for tests and single-process runs.
type MemoryQueue struct {
	mu          sync.Mutex
	pending     []Message
	delayed     []delayedMessage
	inFlight    map[string]Message
	dead        []Message
	notify      chan struct{}
	pollTimeout time.Duration
}

func NewMemoryQueue(pollTimeout time.Duration) *MemoryQueue {
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Millisecond
	}
	return &MemoryQueue{
		inFlight:    make(map[string]Message),
		notify:      make(chan struct{}, 1),
		pollTimeout: pollTimeout,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// promote moves due delayed messages to pending and returns the time until the
// next one is due, or 0 if none is waiting. Callers hold q.mu.
func (q *MemoryQueue) promote(now time.Time) time.Duration {
	var next time.Duration
	waiting := q.delayed[:0]
	for _, d := range q.delayed {
		if !d.visibleAt.After(now) {
			q.pending = append(q.pending, d.msg)
			continue
		}
		waiting = append(waiting, d)
		if until := d.visibleAt.Sub(now); next == 0 || until < next {
			next = until
		}
	}
	q.delayed = waiting
	return next
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		next := q.promote(time.Now())
		if len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]
			q.inFlight[msg.ID] = msg
			q.mu.Unlock()
			return &Delivery{Message: msg, DeliveryCount: msg.DeliveryCount + 1, raw: msg.ID}, nil
		}
		q.mu.Unlock()

		var due <-chan time.Time
		if next > 0 {
			due = time.After(next)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		case <-due:
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, d.raw)
	return nil
}

func (q *MemoryQueue) Redeliver(ctx context.Context, d *Delivery, lots []models.LotKey, delay time.Duration) error {
	if err := q.Ack(ctx, d); err != nil {
		return err
	}
	msg := Message{
		ID:            uuid.NewString(),
		Lots:          lots,
		DeliveryCount: d.DeliveryCount,
		EnqueuedAt:    time.Now().UTC(),
	}
	if delay <= 0 {
		return q.Enqueue(ctx, msg)
	}

	q.mu.Lock()
	q.delayed = append(q.delayed, delayedMessage{msg: msg, visibleAt: time.Now().Add(delay)})
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Dead(ctx context.Context, d *Delivery, _ string) error {
	q.mu.Lock()
	q.dead = append(q.dead, d.Message)
	q.mu.Unlock()
	return q.Ack(ctx, d)
}

// Recover moves unsettled messages back to pending, counting the lost delivery.
func (q *MemoryQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	moved := 0
	for id, msg := range q.inFlight {
		msg.DeliveryCount++
		q.pending = append(q.pending, msg)
		delete(q.inFlight, id)
		moved++
	}
	q.mu.Unlock()
	q.wake()
	return moved, nil
}

func (q *MemoryQueue) Stats(_ context.Context) (Depth, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Depth{
		Pending:    int64(len(q.pending)),
		Processing: int64(len(q.inFlight)),
		Delayed:    int64(len(q.delayed)),
		Dead:       int64(len(q.dead)),
	}, nil
}

// Len returns the number of pending messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Delayed returns the number of redelivered messages not yet visible.
func (q *MemoryQueue) Delayed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.delayed)
}

// InFlight returns the number of received but unsettled messages.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// DeadLetters returns a copy of the dead-lettered messages.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dead...)
}
