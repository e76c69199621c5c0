package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"promos/internal/config"
	apperrors "promos/internal/errors"
	"promos/internal/models"
	"promos/internal/repositories"
	"promos/internal/services/lots"
	"promos/internal/services/wallet"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"
)

type service struct {
	cfg      config.LedgerConfig
	store    repositories.LedgerStore
	wallets  wallet.Service
	lots     lots.Service
	executor failsafe.Executor[*models.Transaction]
	log      logrus.FieldLogger
	metrics  MetricsCollector

	now    func() time.Time
	offset func(n int64) int64
}

// NewService creates a new transaction ledger
func NewService(
	cfg config.LedgerConfig,
	store repositories.LedgerStore,
	wallets wallet.Service,
	lotStore lots.Service,
	log logrus.FieldLogger,
	metrics MetricsCollector,
) Service {
	if store == nil || wallets == nil || lotStore == nil {
		panic("store, wallet service and lot service are required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	cfg = normalizeLedgerConfig(cfg)
	return &service{
		cfg:      cfg,
		store:    store,
		wallets:  wallets,
		lots:     lotStore,
		executor: failsafe.With(NewConflictRetryPolicy(cfg)),
		log:      log.WithField("component", "ledger"),
		metrics:  metrics,
		now:      time.Now,
		offset: func(n int64) int64 {
			return 1 + rand.Int63n(n)
		},
	}
}

func (s *service) Earn(ctx context.Context, in Intent) (*models.Transaction, error) {
	in.Type = models.TransactionTypeEarn
	return s.Record(ctx, in)
}

func (s *service) Spend(ctx context.Context, in Intent) (*models.Transaction, error) {
	in.Type = models.TransactionTypeSpend
	return s.Record(ctx, in)
}

func (s *service) Record(ctx context.Context, in Intent) (*models.Transaction, error) {
	start := time.Now()
	logger := s.log.WithFields(logrus.Fields{
		"user_id":     in.UserID,
		"currency_id": in.CurrencyID,
		"type":        in.Type,
		"amount":      in.Amount,
		"timestamp":   in.Timestamp,
	})

	if err := validate(in); err != nil {
		s.metrics.RecordOperation(string(in.Type), ResultRejected)
		return nil, err
	}

	attempts := 0
	tx, err := s.executor.WithContext(ctx).Get(func() (*models.Transaction, error) {
		attempts++
		set, err := s.PrepareEarnOrSpend(ctx, in)
		if err != nil {
			return nil, err
		}
		return s.Commit(ctx, set)
	})
	s.metrics.RecordAttempts(string(in.Type), attempts)
	s.metrics.RecordOperationDuration(string(in.Type), time.Since(start))

	if err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.KindValidation, apperrors.KindBusiness:
			s.metrics.RecordOperation(string(in.Type), ResultRejected)
			logger.WithError(err).Info("ledger intent rejected")
		case apperrors.KindTransient:
			s.metrics.RecordOperation(string(in.Type), ResultConflict)
			logger.WithError(err).WithField("attempts", attempts).Warn("ledger retries exhausted")
		default:
			s.metrics.RecordOperation(string(in.Type), ResultError)
			logger.WithError(err).Error("ledger operation failed")
		}
		return nil, err
	}

	s.metrics.RecordOperation(string(in.Type), ResultSuccess)
	logger.WithFields(logrus.Fields{
		"committed_timestamp":  tx.TransactionTimestamp,
		"wallet_rolling_total": tx.WalletRollingTotal,
		"attempts":             attempts,
	}).Debug("transaction recorded")
	return tx, nil
}

func (s *service) Apply(ctx context.Context, build BuildFunc) (*models.Transaction, error) {
	if build == nil {
		return nil, errors.New("build function is required")
	}

	start := time.Now()
	attempts := 0
	var txType models.TransactionType
	tx, err := s.executor.WithContext(ctx).Get(func() (*models.Transaction, error) {
		attempts++
		set, extra, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if set != nil {
			txType = set.Intent.Type
		}
		return s.Commit(ctx, set, extra...)
	})
	if txType != "" {
		s.metrics.RecordAttempts(string(txType), attempts)
		s.metrics.RecordOperationDuration(string(txType), time.Since(start))
	}
	if err != nil && apperrors.KindOf(err) == apperrors.KindTransient {
		s.log.WithError(err).WithField("attempts", attempts).Warn("ledger retries exhausted")
	}
	return tx, err
}

func (s *service) PrepareEarnOrSpend(ctx context.Context, in Intent) (*PendingWriteSet, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	current, err := s.wallets.GetBalance(ctx, in.UserID, in.CurrencyID)
	if err != nil {
		return nil, err
	}

	set := &PendingWriteSet{Intent: in}
	amount := in.Amount
	switch in.Type {
	case models.TransactionTypeEarn:
	case models.TransactionTypeSpend:
		if amount == 0 {
			set.Transaction = s.buildTransaction(in, 0, current.Amount)
			return set, nil
		}
		if current.Amount-amount < 0 {
			return nil, ErrInsufficientFunds.Withf("balance %.2f, requested %.2f", current.Amount, amount)
		}
	case models.TransactionTypeExpired:
		// Value spent since the lot was granted is no longer in the wallet.
		amount = math.Min(amount, current.Amount)
		if amount == 0 {
			set.Transaction = s.buildTransaction(in, 0, current.Amount)
			return set, nil
		}
	default:
		return nil, ErrInvalidTransactionType.Withf("%q", in.Type)
	}

	write, err := s.wallets.ApplyDelta(current, wallet.Delta{
		Type:               in.Type,
		Amount:             amount,
		UsesExpirationLots: in.Type == models.TransactionTypeEarn && in.ValidThru != nil,
	})
	if err != nil {
		return nil, err
	}
	set.Wallet = &write

	if in.Type == models.TransactionTypeEarn && in.ValidThru != nil {
		lotWrites, err := s.lots.UpsertLot(ctx, lots.UpsertRequest{
			UserID:          in.UserID,
			CurrencyID:      in.CurrencyID,
			ConfigurationID: in.ConfigurationID,
			ValidThru:       *in.ValidThru,
			Amount:          amount,
			Now:             s.now().UnixMilli(),
		})
		if err != nil {
			return nil, err
		}
		set.Lots = lotWrites
	}

	set.Transaction = s.buildTransaction(in, amount, write.ResultingAmount())
	return set, nil
}

func (s *service) Commit(ctx context.Context, set *PendingWriteSet, extra ...repositories.Write) (*models.Transaction, error) {
	if set == nil {
		return nil, errors.New("pending write set is required")
	}

	tx := set.Transaction
	for perturbations := 0; ; perturbations++ {
		writes := set.writes(tx, extra)
		err := s.store.AtomicWrite(ctx, writes)
		if err == nil {
			if !set.Free() {
				s.wallets.Invalidate(ctx, tx.UserID, tx.CurrencyID)
			}
			return &tx, nil
		}

		var canceled *repositories.TransactionCanceledError
		if !errors.As(err, &canceled) {
			if errors.Is(err, repositories.ErrThrottled) {
				s.metrics.RecordConflict("throttled")
				return nil, ErrThrottled.Wrap(err)
			}
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		if !timestampCollisionOnly(canceled) {
			return nil, s.interpret(set, writes, canceled)
		}
		if perturbations >= s.cfg.TimestampRetries {
			s.metrics.RecordConflict(string(repositories.ReasonDuplicateKey))
			return nil, ErrConflict.Withf("timestamp %d still taken after %d perturbations",
				tx.TransactionTimestamp, perturbations)
		}

		previous := tx.TransactionTimestamp
		tx.TransactionTimestamp += s.offset(s.cfg.MaxTimestampOffset)
		s.metrics.RecordTimestampPerturbation()
		s.log.WithFields(logrus.Fields{
			"user_id":   tx.UserID,
			"timestamp": previous,
			"perturbed": tx.TransactionTimestamp,
		}).Debug("transaction timestamp collision")
	}
}

func (s *service) History(ctx context.Context, userID, currencyID string) ([]models.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, userID, currencyID)
	if err != nil {
		if errors.Is(err, repositories.ErrThrottled) {
			return nil, ErrThrottled.Wrap(err)
		}
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *service) Replay(ctx context.Context, userID, currencyID string) (*ReplayResult, error) {
	txs, err := s.History(ctx, userID, currencyID)
	if err != nil {
		return nil, err
	}
	current, err := s.wallets.GetBalance(ctx, userID, currencyID)
	if err != nil {
		return nil, err
	}

	var total float64
	for i := range txs {
		total += txs[i].SignedAmount()
	}

	result := &ReplayResult{
		UserID:       userID,
		CurrencyID:   currencyID,
		Transactions: len(txs),
		Replayed:     total,
		WalletAmount: current.Amount,
		Consistent:   math.Abs(total-current.Amount) < 1e-9,
	}
	if !result.Consistent {
		s.log.WithFields(logrus.Fields{
			"user_id":       userID,
			"currency_id":   currencyID,
			"replayed":      total,
			"wallet_amount": current.Amount,
		}).Error("wallet does not match its transaction log")
	}
	return result, nil
}

func (s *service) buildTransaction(in Intent, amount, rollingTotal float64) models.Transaction {
	return models.Transaction{
		UserID:               in.UserID,
		TransactionTimestamp: in.Timestamp,
		CurrencyID:           in.CurrencyID,
		Amount:               amount,
		TransactionType:      in.Type,
		WalletRollingTotal:   rollingTotal,
		ValidThru:            in.ValidThru,
		ConfigurationID:      in.ConfigurationID,
		EntryDate:            s.now().UTC(),
	}
}

// interpret turns the per-write reasons of a canceled commit into one domain
// error. An expired lot outranks an over-draw, which outranks a stale read.
func (s *service) interpret(set *PendingWriteSet, writes []repositories.Write, canceled *repositories.TransactionCanceledError) error {
	var lotExpired, insufficient bool
	extraFrom := 1 + len(set.Lots)
	if set.Wallet != nil {
		extraFrom++
	}

	for _, i := range canceled.Failed() {
		reason := canceled.Reason(i)
		s.metrics.RecordConflict(string(reason))

		switch w := writes[i].(type) {
		case repositories.WalletWrite:
			insufficient = insufficient || reason == repositories.ReasonInsufficientBalance
		case repositories.LotWrite:
			lotExpired = lotExpired || (i >= extraFrom && w.ExpectNotExpired)
		case repositories.DeleteWrite:
			lotExpired = lotExpired || (i >= extraFrom && w.ExpectNotExpired)
		}
	}

	switch {
	case lotExpired:
		return ErrLotAlreadyExpired.Wrap(canceled)
	case insufficient:
		return ErrInsufficientFunds.Wrap(canceled)
	default:
		return ErrConflict.Wrap(canceled)
	}
}

func timestampCollisionOnly(canceled *repositories.TransactionCanceledError) bool {
	failed := canceled.Failed()
	return len(failed) == 1 &&
		failed[0] == transactionIndex &&
		canceled.Reason(transactionIndex) == repositories.ReasonDuplicateKey
}

func validate(in Intent) error {
	switch {
	case in.UserID == "" || in.CurrencyID == "":
		return ErrValidation.Withf("user and currency are required")
	case in.Timestamp <= 0:
		return ErrValidation.Withf("timestamp must be a positive unix millisecond value, got %d", in.Timestamp)
	case !in.Type.Valid():
		return ErrInvalidTransactionType.Withf("%q", in.Type)
	case math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0:
		return ErrInvalidAmount.Withf("amount must be a non-negative number, got %v", in.Amount)
	case in.Type == models.TransactionTypeEarn && in.Amount == 0:
		return ErrInvalidAmount.Withf("earn amount must be positive")
	case in.ValidThru != nil && in.Type != models.TransactionTypeEarn && in.Type != models.TransactionTypeExpired:
		return ErrValidation.Withf("validThru only applies to earns")
	case in.ValidThru != nil && *in.ValidThru <= 0:
		return ErrValidation.Withf("validThru must be a positive unix millisecond value")
	}
	return nil
}
