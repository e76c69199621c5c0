// Package lots is the expiration lot store. A lot is the part of a wallet's
// balance that shares one validity window; the store decides how an earn with an
// expiration lands on the existing lots and describes that as writes for the
// ledger's atomic commit.
package lots

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

// Service defines the expiration lot store
type Service interface {
	FindActiveLot(ctx context.Context, userID, currencyID string, validThru int64, configurationID string) (*models.ExpirationLot, error)
	ListLots(ctx context.Context, userID, currencyID string, activeOnly bool) ([]models.ExpirationLot, error)
	// UpsertLot returns the writes that add req.Amount to the lot for req's window.
	UpsertLot(ctx context.Context, req UpsertRequest) ([]repositories.Write, error)
	// MarkExpired returns the terminal write for lot.
	MarkExpired(lot *models.ExpirationLot) (repositories.LotWrite, error)
}

// UpsertRequest describes an earn that carries an expiration.
type UpsertRequest struct {
	UserID          string
	CurrencyID      string
	ConfigurationID string
	ValidThru       int64
	Amount          float64
	// Now is the caller's clock in unix millis; lots with ValidThru before it are
	// left for the sweeper instead of being folded.
	Now int64
}

type service struct {
	store repositories.LedgerStore
	log   logrus.FieldLogger
}

func NewService(store repositories.LedgerStore, log logrus.FieldLogger) Service {
	if store == nil {
		panic("store is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &service{store: store, log: log.WithField("component", "lots")}
}

func (s *service) FindActiveLot(ctx context.Context, userID, currencyID string, validThru int64, configurationID string) (*models.ExpirationLot, error) {
	lots, err := s.ListLots(ctx, userID, currencyID, true)
	if err != nil {
		return nil, err
	}
	for i := range lots {
		if lots[i].ValidThru == validThru && lots[i].ConfigurationID == configurationID {
			return &lots[i], nil
		}
	}
	return nil, nil
}

func (s *service) ListLots(ctx context.Context, userID, currencyID string, activeOnly bool) ([]models.ExpirationLot, error) {
	lots, err := s.store.ListLots(ctx, userID, currencyID, activeOnly)
	if err != nil {
		if errors.Is(err, repositories.ErrThrottled) {
			return nil, apperrors.ErrThrottled.Wrap(err)
		}
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	return lots, nil
}

func (s *service) UpsertLot(ctx context.Context, req UpsertRequest) ([]repositories.Write, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	active, err := s.ListLots(ctx, req.UserID, req.CurrencyID, true)
	if err != nil {
		return nil, err
	}

	var (
		writes   []repositories.Write
		carried  float64
		replaced []int64
		target   *models.ExpirationLot
	)
	for i := range active {
		lot := active[i]
		if lot.ValidThru == req.ValidThru && lot.ConfigurationID == req.ConfigurationID {
			target = &active[i]
			continue
		}
		// Only one live window per currency: a live lot for another window is
		// replaced and its unspent balance moves to the new window.
		if lot.ValidThru != req.ValidThru && lot.ValidThru >= req.Now {
			amount := lot.Amount
			writes = append(writes, repositories.DeleteWrite{
				Key:              lot.Key(),
				ExpectedAmount:   &amount,
				ExpectNotExpired: true,
			})
			carried += lot.Remaining()
			replaced = append(replaced, lot.ValidThru)
		}
	}

	if len(replaced) > 0 {
		s.log.WithFields(logrus.Fields{
			"user_id":      req.UserID,
			"currency_id":  req.CurrencyID,
			"valid_thru":   req.ValidThru,
			"replaced":     replaced,
			"carried_over": carried,
		}).Info("replacing live expiration window")
	}

	if target != nil {
		return append(writes, mergeWrite(*target, req.Amount+carried)), nil
	}

	key := models.LotKey{
		UserID:          req.UserID,
		CurrencyID:      req.CurrencyID,
		ValidThru:       req.ValidThru,
		ConfigurationID: req.ConfigurationID,
	}
	if existing, err := s.store.GetLot(ctx, key); err == nil && existing.AlreadyExpired {
		return nil, apperrors.ErrLotAlreadyExpired.Withf("window %d", req.ValidThru)
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}

	writes = append(writes, repositories.LotWrite{
		Lot: models.ExpirationLot{
			UserID:          req.UserID,
			CurrencyID:      req.CurrencyID,
			ValidThru:       req.ValidThru,
			ConfigurationID: req.ConfigurationID,
			Amount:          req.Amount + carried,
		},
		Insert: true,
	})
	return writes, nil
}

func (s *service) MarkExpired(lot *models.ExpirationLot) (repositories.LotWrite, error) {
	if lot == nil {
		return repositories.LotWrite{}, apperrors.ErrLotNotFound
	}
	if lot.AlreadyExpired {
		return repositories.LotWrite{}, apperrors.ErrLotAlreadyExpired
	}
	expired := *lot
	expired.AlreadyExpired = true
	return repositories.LotWrite{Lot: expired, ExpectNotExpired: true}, nil
}

func mergeWrite(lot models.ExpirationLot, amount float64) repositories.LotWrite {
	expected := lot.Amount
	merged := lot
	merged.Amount += amount
	merged.AlreadyExpired = false
	return repositories.LotWrite{
		Lot:              merged,
		ExpectedAmount:   &expected,
		ExpectNotExpired: true,
	}
}

func validate(req UpsertRequest) error {
	switch {
	case req.UserID == "" || req.CurrencyID == "":
		return apperrors.ErrValidation.Withf("user and currency are required")
	case math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0:
		return apperrors.ErrInvalidAmount.Withf("earn with expiration must be positive, got %v", req.Amount)
	case req.ValidThru <= 0:
		return apperrors.ErrValidation.Withf("validThru is required")
	case req.ValidThru <= req.Now:
		return apperrors.ErrValidation.Withf("validThru %d is not in the future", req.ValidThru)
	}
	return nil
}
