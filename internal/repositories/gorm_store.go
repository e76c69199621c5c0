package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promos/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres error codes the store interprets.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqTooManyConnections   = "53300"
)

// GormStore implements LedgerStore on postgres. Conditions are expressed in the
// WHERE clause of each statement and a zero row count cancels the whole SQL
// transaction.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	if db == nil {
		panic("db is required")
	}
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) GetWallet(ctx context.Context, userID, currencyID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency_id = ?", userID, currencyID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", classify(err))
	}
	wallet.Exists = true
	return &wallet, nil
}

func (s *GormStore) GetLot(ctx context.Context, key models.LotKey) (*models.ExpirationLot, error) {
	var lot models.ExpirationLot
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency_id = ? AND valid_thru = ? AND configuration_id = ?",
			key.UserID, key.CurrencyID, key.ValidThru, key.ConfigurationID).
		First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lot: %w", classify(err))
	}
	return &lot, nil
}

func (s *GormStore) ListLots(ctx context.Context, userID, currencyID string, activeOnly bool) ([]models.ExpirationLot, error) {
	var lots []models.ExpirationLot
	q := s.db.WithContext(ctx).Where("user_id = ? AND currency_id = ?", userID, currencyID)
	if activeOnly {
		q = q.Where("already_expired = ?", false)
	}
	if err := q.Order("valid_thru ASC").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", classify(err))
	}
	return lots, nil
}

func (s *GormStore) ListDueLots(ctx context.Context, now int64, limit int) ([]models.ExpirationLot, error) {
	var lots []models.ExpirationLot
	q := s.db.WithContext(ctx).
		Where("already_expired = ? AND valid_thru < ?", false, now).
		Order("valid_thru ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to list due lots: %w", classify(err))
	}
	return lots, nil
}

func (s *GormStore) GetTransaction(ctx context.Context, userID string, timestamp int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND transaction_timestamp = ?", userID, timestamp).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", classify(err))
	}
	return &tx, nil
}

func (s *GormStore) ListTransactions(ctx context.Context, userID, currencyID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency_id = ?", userID, currencyID).
		Order("transaction_timestamp ASC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", classify(err))
	}
	return txs, nil
}

func (s *GormStore) AtomicWrite(ctx context.Context, writes []Write) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, w := range writes {
			reason, err := s.apply(tx, w, now)
			if err != nil {
				if pqErr := asPQ(err); pqErr != nil {
					switch pqErr.Code {
					case pqUniqueViolation:
						return newCanceled(len(writes), i, ReasonDuplicateKey)
					case pqSerializationFailure, pqDeadlockDetected:
						return newCanceled(len(writes), i, ReasonConditionalCheckFailed)
					}
				}
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return newCanceled(len(writes), i, ReasonDuplicateKey)
				}
				return fmt.Errorf("write %d (%s): %w", i, w, err)
			}
			if reason != ReasonNone {
				return newCanceled(len(writes), i, reason)
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var canceled *TransactionCanceledError
	if errors.As(err, &canceled) {
		return canceled
	}
	return classify(err)
}

func (s *GormStore) apply(tx *gorm.DB, w Write, now time.Time) (CancellationReason, error) {
	switch w := w.(type) {
	case TransactionWrite:
		t := w.Transaction
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&t)
		if res.Error != nil {
			return ReasonNone, res.Error
		}
		if res.RowsAffected == 0 {
			return ReasonDuplicateKey, nil
		}
	case WalletWrite:
		return s.applyWallet(tx, w, now)
	case LotWrite:
		return s.applyLot(tx, w, now)
	case DeleteWrite:
		q := lotScope(tx.Model(&models.ExpirationLot{}), w.Key, w.ExpectedAmount, w.ExpectNotExpired)
		res := q.Delete(&models.ExpirationLot{})
		if res.Error != nil {
			return ReasonNone, res.Error
		}
		if res.RowsAffected == 0 {
			return ReasonConditionalCheckFailed, nil
		}
	default:
		return ReasonNone, fmt.Errorf("unsupported write %T", w)
	}
	return ReasonNone, nil
}

func (s *GormStore) applyWallet(tx *gorm.DB, w WalletWrite, now time.Time) (CancellationReason, error) {
	if w.Insert {
		wallet := models.Wallet{
			UserID:                 w.UserID,
			CurrencyID:             w.CurrencyID,
			Amount:                 w.ResultingAmount(),
			TotalAmountAccumulated: w.AccumulatedDelta,
			UsesExpirationLots:     w.UsesExpirationLots,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet)
		if res.Error != nil {
			return ReasonNone, res.Error
		}
		if res.RowsAffected == 0 {
			return ReasonConditionalCheckFailed, nil
		}
		return ReasonNone, nil
	}

	if w.RequireNonNegative && w.ResultingAmount() < 0 {
		return ReasonInsufficientBalance, nil
	}

	q := tx.Model(&models.Wallet{}).
		Where("user_id = ? AND currency_id = ? AND amount = ?", w.UserID, w.CurrencyID, w.ExpectedAmount)
	if w.RequireNonNegative {
		q = q.Where("amount + ? >= 0", w.Delta)
	}
	updates := map[string]interface{}{
		"amount":     w.ResultingAmount(),
		"updated_at": now,
	}
	if w.AccumulatedDelta != 0 {
		updates["total_amount_accumulated"] = gorm.Expr("total_amount_accumulated + ?", w.AccumulatedDelta)
	}
	if w.UsesExpirationLots {
		updates["uses_expiration_lots"] = true
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return ReasonNone, res.Error
	}
	if res.RowsAffected == 0 {
		return ReasonConditionalCheckFailed, nil
	}
	return ReasonNone, nil
}

func (s *GormStore) applyLot(tx *gorm.DB, w LotWrite, now time.Time) (CancellationReason, error) {
	lot := w.Lot
	if w.Insert {
		lot.CreatedAt = now
		lot.UpdatedAt = now
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lot)
		if res.Error != nil {
			return ReasonNone, res.Error
		}
		if res.RowsAffected == 0 {
			return ReasonConditionalCheckFailed, nil
		}
		return ReasonNone, nil
	}

	res := lotScope(tx.Model(&models.ExpirationLot{}), lot.Key(), w.ExpectedAmount, w.ExpectNotExpired).
		Updates(map[string]interface{}{
			"amount":          lot.Amount,
			"spent_amount":    lot.SpentAmount,
			"already_expired": lot.AlreadyExpired,
			"updated_at":      now,
		})
	if res.Error != nil {
		return ReasonNone, res.Error
	}
	if res.RowsAffected == 0 {
		return ReasonConditionalCheckFailed, nil
	}
	return ReasonNone, nil
}

func lotScope(q *gorm.DB, key models.LotKey, expectedAmount *float64, expectNotExpired bool) *gorm.DB {
	q = q.Where("user_id = ? AND currency_id = ? AND valid_thru = ? AND configuration_id = ?",
		key.UserID, key.CurrencyID, key.ValidThru, key.ConfigurationID)
	if expectNotExpired {
		q = q.Where("already_expired = ?", false)
	}
	if expectedAmount != nil {
		q = q.Where("amount = ?", *expectedAmount)
	}
	return q
}

func asPQ(err error) *pq.Error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr
	}
	return nil
}

// classify maps driver errors that mean "try again later" onto ErrThrottled.
func classify(err error) error {
	if pqErr := asPQ(err); pqErr != nil {
		switch pqErr.Code {
		case pqLockNotAvailable, pqTooManyConnections:
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		}
	}
	return err
}
