package repositories

import (
	"context"
	"errors"
	"testing"

	"promos/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AtomicWriteIsAllOrNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.AtomicWrite(ctx, []Write{
		TransactionWrite{Transaction: models.Transaction{UserID: "u1", TransactionTimestamp: 1, CurrencyID: "coins", Amount: 10}},
		WalletWrite{UserID: "u1", CurrencyID: "coins", Insert: true, Delta: 10, AccumulatedDelta: 10},
	}))

	err := store.AtomicWrite(ctx, []Write{
		TransactionWrite{Transaction: models.Transaction{UserID: "u1", TransactionTimestamp: 2, CurrencyID: "coins", Amount: 5}},
		WalletWrite{UserID: "u1", CurrencyID: "coins", ExpectedAmount: 7, Delta: 5},
	})
	var canceled *TransactionCanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Equal(t, []int{1}, canceled.Failed())

	_, err = store.GetTransaction(ctx, "u1", 2)
	assert.ErrorIs(t, err, ErrNotFound, "nothing from a canceled write may land")

	w, err := store.GetWallet(ctx, "u1", "coins")
	require.NoError(t, err)
	assert.Equal(t, 10.0, w.Amount)
	assert.Equal(t, 10.0, w.TotalAmountAccumulated)
}

func TestMemoryStore_ReportsEveryFailedCondition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.AtomicWrite(ctx, []Write{
		TransactionWrite{Transaction: models.Transaction{UserID: "u1", TransactionTimestamp: 1}},
		WalletWrite{UserID: "u1", CurrencyID: "coins", Insert: true, Delta: 3},
	}))

	err := store.AtomicWrite(ctx, []Write{
		TransactionWrite{Transaction: models.Transaction{UserID: "u1", TransactionTimestamp: 1}},
		WalletWrite{UserID: "u1", CurrencyID: "coins", ExpectedAmount: 3, Delta: -5, RequireNonNegative: true},
	})
	var canceled *TransactionCanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Equal(t, ReasonDuplicateKey, canceled.Reason(0))
	assert.Equal(t, ReasonInsufficientBalance, canceled.Reason(1))
}

func TestMemoryStore_LotConditions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	lot := models.ExpirationLot{UserID: "u1", CurrencyID: "coins", ValidThru: 100, Amount: 20}
	require.NoError(t, store.AtomicWrite(ctx, []Write{LotWrite{Lot: lot, Insert: true}}))

	expired := lot
	expired.AlreadyExpired = true
	require.NoError(t, store.AtomicWrite(ctx, []Write{LotWrite{Lot: expired, ExpectNotExpired: true}}))

	err := store.AtomicWrite(ctx, []Write{LotWrite{Lot: expired, ExpectNotExpired: true}})
	var canceled *TransactionCanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Equal(t, ReasonConditionalCheckFailed, canceled.Reason(0))

	stale := 99.0
	err = store.AtomicWrite(ctx, []Write{DeleteWrite{Key: lot.Key(), ExpectedAmount: &stale}})
	require.ErrorAs(t, err, &canceled)

	due, err := store.ListDueLots(ctx, 200, 0)
	require.NoError(t, err)
	assert.Empty(t, due, "expired lots are never due again")

	active, err := store.ListLots(ctx, "u1", "coins", true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMemoryStore_BeforeWriteHook(t *testing.T) {
	store := NewMemoryStore()
	store.BeforeWrite = func([]Write) error { return ErrThrottled }

	err := store.AtomicWrite(context.Background(), []Write{
		TransactionWrite{Transaction: models.Transaction{UserID: "u1", TransactionTimestamp: 1}},
	})
	assert.True(t, errors.Is(err, ErrThrottled))
}
