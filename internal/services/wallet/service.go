package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"

	apperrors "promos/internal/errors"
	"promos/internal/models"
	"promos/internal/repositories"

	"github.com/sirupsen/logrus"
)

type service struct {
	store repositories.LedgerStore
	cache CacheOperator
	log   logrus.FieldLogger
}

// NewService creates a new wallet store
func NewService(store repositories.LedgerStore, cache CacheOperator, log logrus.FieldLogger) Service {
	if store == nil {
		panic("store is required")
	}
	if cache == nil {
		cache = NoopCache{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &service{
		store: store,
		cache: cache,
		log:   log.WithField("component", "wallet"),
	}
}

func (s *service) GetBalance(ctx context.Context, userID, currencyID string) (*models.Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID, currencyID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &models.Wallet{UserID: userID, CurrencyID: currencyID}, nil
		}
		if errors.Is(err, repositories.ErrThrottled) {
			return nil, apperrors.ErrThrottled.Wrap(err)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	w.Exists = true
	return w, nil
}

func (s *service) GetCachedBalance(ctx context.Context, userID, currencyID string) (*models.Wallet, error) {
	if cached, err := s.cache.GetWallet(ctx, userID, currencyID); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.log.WithError(err).Warn("balance cache read failed")
	}

	// The version is read before the store so an invalidation racing this read
	// keeps the result out of the cache.
	version, versionErr := s.cache.WalletVersion(ctx, userID, currencyID)
	if versionErr != nil {
		s.log.WithError(versionErr).Warn("balance cache version read failed")
	}

	w, err := s.GetBalance(ctx, userID, currencyID)
	if err != nil {
		return nil, err
	}
	if w.Exists && versionErr == nil {
		if err := s.cache.CacheWallet(ctx, w, version); err != nil {
			s.log.WithError(err).Warn("balance cache write failed")
		}
	}
	return w, nil
}

func (s *service) Invalidate(ctx context.Context, userID, currencyID string) {
	if err := s.cache.InvalidateWallet(ctx, userID, currencyID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":     userID,
			"currency_id": currencyID,
		}).Warn("failed to invalidate balance cache")
	}
}

func (s *service) ApplyDelta(current *models.Wallet, delta Delta) (repositories.WalletWrite, error) {
	if current == nil {
		return repositories.WalletWrite{}, errors.New("current wallet is required")
	}
	if math.IsNaN(delta.Amount) || math.IsInf(delta.Amount, 0) || delta.Amount < 0 {
		return repositories.WalletWrite{}, ErrInvalidAmount.Withf("%v", delta.Amount)
	}

	write := repositories.WalletWrite{
		UserID:             current.UserID,
		CurrencyID:         current.CurrencyID,
		ExpectedAmount:     current.Amount,
		UsesExpirationLots: delta.UsesExpirationLots,
	}

	switch delta.Type {
	case models.TransactionTypeEarn:
		write.Delta = delta.Amount
		write.AccumulatedDelta = delta.Amount
		if !current.Exists {
			write.Insert = true
			write.ExpectedAmount = 0
		}
	case models.TransactionTypeSpend, models.TransactionTypeExpired:
		if !current.Exists || current.Amount-delta.Amount < 0 {
			return repositories.WalletWrite{}, ErrInsufficientFunds.Withf("balance %.2f, requested %.2f",
				current.Amount, delta.Amount)
		}
		write.Delta = -delta.Amount
		write.RequireNonNegative = true
	default:
		return repositories.WalletWrite{}, ErrInvalidTransactionType.Withf("%q", delta.Type)
	}

	return write, nil
}
