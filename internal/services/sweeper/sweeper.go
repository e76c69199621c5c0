// Package sweeper retires expiration lots whose window has closed. A scheduled
// scan enqueues due lots in batches; workers consume the batches and commit one
// expiry per lot through the ledger, which retries transient failures with its
// own backoff. Lots still failing after that go back on the queue with their
// delivery count and a growing delay, up to MaxDeliveries.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"promos/internal/config"
	apperrors "promos/internal/errors"
	"promos/internal/models"
	"promos/internal/queue"
	"promos/internal/repositories"
	"promos/internal/services/ledger"
	"promos/internal/services/lots"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sweeper scans for due lots and expires them.
type Sweeper struct {
	cfg     config.SweeperConfig
	store   repositories.LedgerStore
	ledger  ledger.Service
	lots    lots.Service
	queue   queue.Queue
	log     logrus.FieldLogger
	metrics MetricsCollector
	now     func() time.Time
}

func New(
	cfg config.SweeperConfig,
	store repositories.LedgerStore,
	ledgerSvc ledger.Service,
	lotSvc lots.Service,
	q queue.Queue,
	log logrus.FieldLogger,
	metrics MetricsCollector,
) *Sweeper {
	if store == nil || ledgerSvc == nil || lotSvc == nil || q == nil {
		panic("store, ledger, lot service and queue are required")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 25
	}
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 10
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 15 * time.Minute
	}
	if cfg.RedeliveryBaseDelay <= 0 {
		cfg.RedeliveryBaseDelay = time.Second
	}
	if cfg.RedeliveryMaxDelay < cfg.RedeliveryBaseDelay {
		cfg.RedeliveryMaxDelay = max(cfg.RedeliveryBaseDelay, 5*time.Minute)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	return &Sweeper{
		cfg:     cfg,
		store:   store,
		ledger:  ledgerSvc,
		lots:    lotSvc,
		queue:   q,
		log:     log.WithField("component", "sweeper"),
		metrics: metrics,
		now:     time.Now,
	}
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Lots    int `json:"lots"`
	Batches int `json:"batches"`
}

// Scan enqueues every lot due at now, in batches of BatchSize.
func (s *Sweeper) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	due, err := s.store.ListDueLots(ctx, now.UnixMilli(), s.cfg.ScanLimit)
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to list due lots: %w", err)
	}

	var result ScanResult
	for start := 0; start < len(due); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(due))
		keys := make([]models.LotKey, 0, end-start)
		for i := start; i < end; i++ {
			keys = append(keys, due[i].Key())
		}
		if err := s.queue.Enqueue(ctx, queue.NewMessage(keys)); err != nil {
			s.metrics.RecordScan(result.Lots, result.Batches)
			return result, err
		}
		result.Lots += len(keys)
		result.Batches++
	}

	s.metrics.RecordScan(result.Lots, result.Batches)
	s.log.WithFields(logrus.Fields{
		"due_lots": result.Lots,
		"batches":  result.Batches,
		"now":      now.UnixMilli(),
	}).Info("expiration scan finished")
	return result, nil
}

// Handle processes one delivered batch and settles it on the queue.
func (s *Sweeper) Handle(ctx context.Context, d *queue.Delivery) error {
	logger := s.log.WithFields(logrus.Fields{
		"message_id":     d.Message.ID,
		"delivery_count": d.DeliveryCount,
		"lots":           len(d.Message.Lots),
	})

	if d.DeliveryCount > s.cfg.MaxDeliveries {
		s.metrics.RecordPoisonMessage()
		logger.WithField("lot_keys", d.Message.Lots).
			Error("expiration batch exceeded its delivery bound, manual reconciliation required")
		return s.queue.Dead(ctx, d, fmt.Sprintf("exceeded %d deliveries", s.cfg.MaxDeliveries))
	}

	now := s.now()
	var retry []models.LotKey
	for _, key := range d.Message.Lots {
		outcome := s.expireLot(ctx, key, now)
		s.metrics.RecordLotOutcome(outcome)
		if outcome == OutcomeRetry {
			retry = append(retry, key)
		}
	}

	if len(retry) > 0 {
		delay := s.redeliveryDelay(d.DeliveryCount)
		logger.WithFields(logrus.Fields{
			"retry_lots": len(retry),
			"delay":      delay.String(),
		}).Warn("re-enqueueing lots after transient failures")
		return s.queue.Redeliver(ctx, d, retry, delay)
	}
	return s.queue.Ack(ctx, d)
}

func (s *Sweeper) expireLot(ctx context.Context, key models.LotKey, now time.Time) string {
	logger := s.log.WithFields(logrus.Fields{
		"user_id":     key.UserID,
		"currency_id": key.CurrencyID,
		"valid_thru":  key.ValidThru,
	})

	var lot *models.ExpirationLot
	tx, err := s.ledger.Apply(ctx, func(ctx context.Context) (*ledger.PendingWriteSet, []repositories.Write, error) {
		current, err := s.readDueLot(ctx, key, now)
		if err != nil {
			return nil, nil, err
		}
		mark, err := s.lots.MarkExpired(current)
		if err != nil {
			return nil, nil, err
		}
		validThru := current.ValidThru
		set, err := s.ledger.PrepareEarnOrSpend(ctx, ledger.Intent{
			UserID:          current.UserID,
			CurrencyID:      current.CurrencyID,
			Amount:          current.Remaining(),
			Type:            models.TransactionTypeExpired,
			ValidThru:       &validThru,
			ConfigurationID: current.ConfigurationID,
			Timestamp:       now.UnixMilli(),
		})
		if err != nil {
			return nil, nil, err
		}
		lot = current
		return set, []repositories.Write{mark}, nil
	})

	switch {
	case err == nil:
		s.metrics.RecordExpiredAmount(tx.CurrencyID, tx.Amount)
		logger.WithFields(logrus.Fields{
			"expired_amount": tx.Amount,
			"lot_remaining":  lot.Remaining(),
			"timestamp":      tx.TransactionTimestamp,
		}).Info("lot expired")
		return OutcomeExpired
	case errors.Is(err, apperrors.ErrLotNotFound):
		logger.Debug("lot vanished before expiry")
		return OutcomeSkipped
	case errors.Is(err, apperrors.ErrLotAlreadyExpired):
		logger.Debug("lot already expired")
		return OutcomeSkipped
	case apperrors.KindOf(err) == apperrors.KindValidation || apperrors.KindOf(err) == apperrors.KindBusiness:
		logger.WithError(err).Error("lot expiry rejected")
		return OutcomeSkipped
	default:
		logger.WithError(err).Warn("lot expiry failed, will retry")
		return OutcomeRetry
	}
}

// readDueLot re-reads the lot so each attempt works from its current state.
func (s *Sweeper) readDueLot(ctx context.Context, key models.LotKey, now time.Time) (*models.ExpirationLot, error) {
	lot, err := s.store.GetLot(ctx, key)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return nil, apperrors.ErrLotNotFound.Withf("lot %s/%s/%d", key.UserID, key.CurrencyID, key.ValidThru)
	case errors.Is(err, repositories.ErrThrottled):
		return nil, apperrors.ErrThrottled.Wrap(err)
	case err != nil:
		return nil, fmt.Errorf("failed to read lot: %w", err)
	case lot.AlreadyExpired || !lot.IsDue(now.UnixMilli()):
		return nil, apperrors.ErrLotAlreadyExpired
	}
	return lot, nil
}

// redeliveryDelay doubles from RedeliveryBaseDelay with each delivery, capped at
// RedeliveryMaxDelay, with up to 10% jitter either way.
func (s *Sweeper) redeliveryDelay(deliveryCount int) time.Duration {
	delay := s.cfg.RedeliveryBaseDelay
	for i := 1; i < deliveryCount && delay < s.cfg.RedeliveryMaxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, s.cfg.RedeliveryMaxDelay)
	jitter := time.Duration((rand.Float64()*2 - 1) * 0.1 * float64(delay))
	return delay + jitter
}

// Work consumes the queue until ctx is done.
func (s *Sweeper) Work(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := s.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Warn("failed to receive expiration batch")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if d == nil {
			continue
		}
		if err := s.Handle(ctx, d); err != nil {
			s.log.WithError(err).WithField("message_id", d.Message.ID).Error("failed to settle expiration batch")
		}
	}
}

// depthReporter is implemented by queues that can report their backlog.
type depthReporter interface {
	Stats(ctx context.Context) (queue.Depth, error)
}

// scheduledScan scans unless batches from an earlier scan are still queued.
// Those batches already cover every lot they hold, so scanning again would only
// enqueue the same lots twice. It reports whether a scan ran.
func (s *Sweeper) scheduledScan(ctx context.Context) bool {
	if r, ok := s.queue.(depthReporter); ok {
		depth, err := r.Stats(ctx)
		switch {
		case err != nil:
			s.log.WithError(err).Warn("failed to read queue depth, scanning anyway")
		case depth.Backlog() > 0:
			s.log.WithFields(logrus.Fields{
				"pending":    depth.Pending,
				"processing": depth.Processing,
				"delayed":    depth.Delayed,
			}).Info("skipping expiration scan while earlier batches are queued")
			return false
		}
	}

	if _, err := s.Scan(ctx, s.now()); err != nil {
		s.log.WithError(err).Error("expiration scan failed")
	}
	return true
}

// Schedule scans once immediately and then every ScanInterval until ctx is done.
// A tick is skipped while the queue still holds batches from an earlier scan.
func (s *Sweeper) Schedule(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		s.scheduledScan(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Run starts the scheduler and Workers consumers and blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Schedule(ctx) })
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error { return s.Work(ctx) })
	}
	return g.Wait()
}
