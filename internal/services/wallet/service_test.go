package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "promos/internal/errors"
	"promos/internal/logger"
	"promos/internal/models"
	"promos/internal/repositories"
	"promos/internal/repositories/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
	repositories.LedgerStore
}

func (m *MockStore) GetWallet(ctx context.Context, userID, currencyID string) (*models.Wallet, error) {
	args := m.Called(ctx, userID, currencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetWallet(ctx context.Context, userID, currencyID string) (*models.Wallet, error) {
	args := m.Called(ctx, userID, currencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockCache) WalletVersion(ctx context.Context, userID, currencyID string) (int64, error) {
	args := m.Called(ctx, userID, currencyID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) CacheWallet(ctx context.Context, wallet *models.Wallet, version int64) error {
	args := m.Called(ctx, wallet, version)
	return args.Error(0)
}

func (m *MockCache) InvalidateWallet(ctx context.Context, userID, currencyID string) error {
	args := m.Called(ctx, userID, currencyID)
	return args.Error(0)
}

func TestWalletService_GetBalance(t *testing.T) {
	t.Run("existing wallet", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetWallet", mock.Anything, "u1", "coins").
			Return(&models.Wallet{UserID: "u1", CurrencyID: "coins", Amount: 100}, nil)

		svc := NewService(store, nil, logger.Discard())
		w, err := svc.GetBalance(context.Background(), "u1", "coins")
		require.NoError(t, err)
		assert.Equal(t, 100.0, w.Amount)
		assert.True(t, w.Exists)
		store.AssertExpectations(t)
	})

	t.Run("missing wallet defaults to zero", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetWallet", mock.Anything, "u1", "coins").Return(nil, repositories.ErrNotFound)

		svc := NewService(store, nil, logger.Discard())
		w, err := svc.GetBalance(context.Background(), "u1", "coins")
		require.NoError(t, err)
		assert.Equal(t, 0.0, w.Amount)
		assert.False(t, w.Exists)
		assert.Equal(t, "coins", w.CurrencyID)
	})

	t.Run("throttling is transient", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetWallet", mock.Anything, "u1", "coins").Return(nil, repositories.ErrThrottled)

		svc := NewService(store, nil, logger.Discard())
		_, err := svc.GetBalance(context.Background(), "u1", "coins")
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})
}

func TestWalletService_GetCachedBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips the store", func(t *testing.T) {
		store := new(MockStore)
		cache := new(MockCache)
		cache.On("GetWallet", ctx, "u1", "coins").
			Return(&models.Wallet{UserID: "u1", CurrencyID: "coins", Amount: 7, Exists: true}, nil)

		svc := NewService(store, cache, logger.Discard())
		w, err := svc.GetCachedBalance(ctx, "u1", "coins")
		require.NoError(t, err)
		assert.Equal(t, 7.0, w.Amount)
		store.AssertNotCalled(t, "GetWallet", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache miss populates cache", func(t *testing.T) {
		store := new(MockStore)
		cache := new(MockCache)
		stored := &models.Wallet{UserID: "u1", CurrencyID: "coins", Amount: 9}
		cache.On("GetWallet", ctx, "u1", "coins").Return(nil, nil)
		cache.On("WalletVersion", ctx, "u1", "coins").Return(int64(3), nil)
		store.On("GetWallet", ctx, "u1", "coins").Return(stored, nil)
		cache.On("CacheWallet", ctx, stored, int64(3)).Return(nil)

		svc := NewService(store, cache, logger.Discard())
		w, err := svc.GetCachedBalance(ctx, "u1", "coins")
		require.NoError(t, err)
		assert.Equal(t, 9.0, w.Amount)
		cache.AssertExpectations(t)
	})

	t.Run("cache errors fall back to the store", func(t *testing.T) {
		store := new(MockStore)
		cache := new(MockCache)
		cache.On("GetWallet", ctx, "u1", "coins").Return(nil, errors.New("redis down"))
		cache.On("WalletVersion", ctx, "u1", "coins").Return(int64(0), errors.New("redis down"))
		store.On("GetWallet", ctx, "u1", "coins").Return(nil, repositories.ErrNotFound)

		svc := NewService(store, cache, logger.Discard())
		w, err := svc.GetCachedBalance(ctx, "u1", "coins")
		require.NoError(t, err)
		assert.False(t, w.Exists)
		cache.AssertNotCalled(t, "CacheWallet", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("version read failure skips the cache write", func(t *testing.T) {
		store := new(MockStore)
		cache := new(MockCache)
		cache.On("GetWallet", ctx, "u1", "coins").Return(nil, nil)
		cache.On("WalletVersion", ctx, "u1", "coins").Return(int64(0), errors.New("redis down"))
		store.On("GetWallet", ctx, "u1", "coins").Return(&models.Wallet{UserID: "u1", CurrencyID: "coins", Amount: 4}, nil)

		svc := NewService(store, cache, logger.Discard())
		w, err := svc.GetCachedBalance(ctx, "u1", "coins")
		require.NoError(t, err)
		assert.Equal(t, 4.0, w.Amount)
		cache.AssertNotCalled(t, "CacheWallet", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWalletService_InvalidationDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	balances := cache.NewCacheService(client, time.Minute)

	store := new(MockStore)
	store.On("GetWallet", ctx, "u1", "coins").
		Return(&models.Wallet{UserID: "u1", CurrencyID: "coins", Amount: 100}, nil).
		Run(func(mock.Arguments) {
			// A spend commits and invalidates while the old balance is in hand.
			require.NoError(t, balances.InvalidateWallet(ctx, "u1", "coins"))
		})

	svc := NewService(store, balances, logger.Discard())
	w, err := svc.GetCachedBalance(ctx, "u1", "coins")
	require.NoError(t, err)
	assert.Equal(t, 100.0, w.Amount)

	cached, err := balances.GetWallet(ctx, "u1", "coins")
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.False(t, mr.Exists("wallet:u1:coins"))
}

func TestWalletService_ApplyDelta(t *testing.T) {
	existing := &models.Wallet{UserID: "u1", CurrencyID: "coins", Amount: 100, Exists: true}
	missing := &models.Wallet{UserID: "u1", CurrencyID: "coins"}

	tests := []struct {
		name    string
		current *models.Wallet
		delta   Delta
		want    repositories.WalletWrite
		wantErr error
	}{
		{
			name:    "first earn inserts",
			current: missing,
			delta:   Delta{Type: models.TransactionTypeEarn, Amount: 50, UsesExpirationLots: true},
			want: repositories.WalletWrite{
				UserID: "u1", CurrencyID: "coins", Insert: true, Delta: 50,
				AccumulatedDelta: 50, UsesExpirationLots: true,
			},
		},
		{
			name:    "earn on existing wallet is a compare-and-swap",
			current: existing,
			delta:   Delta{Type: models.TransactionTypeEarn, Amount: 25},
			want: repositories.WalletWrite{
				UserID: "u1", CurrencyID: "coins", ExpectedAmount: 100, Delta: 25, AccumulatedDelta: 25,
			},
		},
		{
			name:    "spend carries the non-negative predicate",
			current: existing,
			delta:   Delta{Type: models.TransactionTypeSpend, Amount: 30},
			want: repositories.WalletWrite{
				UserID: "u1", CurrencyID: "coins", ExpectedAmount: 100, Delta: -30, RequireNonNegative: true,
			},
		},
		{
			name:    "expiry of the whole balance",
			current: existing,
			delta:   Delta{Type: models.TransactionTypeExpired, Amount: 100},
			want: repositories.WalletWrite{
				UserID: "u1", CurrencyID: "coins", ExpectedAmount: 100, Delta: -100, RequireNonNegative: true,
			},
		},
		{
			name:    "over-draw is rejected",
			current: existing,
			delta:   Delta{Type: models.TransactionTypeSpend, Amount: 101},
			wantErr: apperrors.ErrInsufficientFunds,
		},
		{
			name:    "spend without a wallet is rejected",
			current: missing,
			delta:   Delta{Type: models.TransactionTypeSpend, Amount: 1},
			wantErr: apperrors.ErrInsufficientFunds,
		},
		{
			name:    "negative amount",
			current: existing,
			delta:   Delta{Type: models.TransactionTypeEarn, Amount: -1},
			wantErr: apperrors.ErrInvalidAmount,
		},
		{
			name:    "unknown type",
			current: existing,
			delta:   Delta{Type: "refund", Amount: 1},
			wantErr: apperrors.ErrInvalidTransactionType,
		},
	}

	svc := NewService(new(MockStore), nil, logger.Discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ApplyDelta(tt.current, tt.delta)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWalletService_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache := new(MockCache)
	cache.On("InvalidateWallet", ctx, "u1", "coins").Return(errors.New("redis down"))

	svc := NewService(new(MockStore), cache, logger.Discard())
	svc.Invalidate(ctx, "u1", "coins")
	cache.AssertExpectations(t)
}
