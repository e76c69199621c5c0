package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransactionType(t *testing.T) {
	for _, s := range []string{"earn", "spend", "expired"} {
		got, err := ParseTransactionType(s)
		require.NoError(t, err)
		assert.Equal(t, TransactionType(s), got)
	}
	_, err := ParseTransactionType("refund")
	assert.Error(t, err)
	assert.False(t, TransactionType("").Valid())
}

func TestSignedAmount(t *testing.T) {
	tests := []struct {
		txType TransactionType
		want   float64
	}{
		{TransactionTypeEarn, 12},
		{TransactionTypeSpend, -12},
		{TransactionTypeExpired, -12},
	}
	for _, tt := range tests {
		tx := Transaction{TransactionType: tt.txType, Amount: 12}
		assert.Equal(t, tt.want, tx.SignedAmount(), tt.txType)
	}
	assert.True(t, TransactionTypeExpired.Debits())
	assert.False(t, TransactionTypeEarn.Debits())
}

func TestExpirationLot(t *testing.T) {
	lot := ExpirationLot{UserID: "u1", CurrencyID: "coins", ValidThru: 100, Amount: 50, SpentAmount: 20}
	assert.Equal(t, 30.0, lot.Remaining())
	assert.False(t, lot.IsDue(100), "a lot is valid through its ValidThru instant")
	assert.True(t, lot.IsDue(101))

	lot.AlreadyExpired = true
	assert.False(t, lot.IsDue(101))
	assert.Equal(t, LotKey{UserID: "u1", CurrencyID: "coins", ValidThru: 100}, lot.Key())
}

func TestClaimsPermissions(t *testing.T) {
	user := UserClaims{UserID: "u1", Role: RoleUser, Permissions: GetDefaultPermissions(RoleUser)}
	assert.True(t, user.HasPermission(PermissionWalletRead))
	assert.False(t, user.HasPermission(PermissionWalletWrite))

	admin := UserClaims{UserID: "ops", Role: RoleAdmin}
	assert.True(t, admin.HasPermission(PermissionSweepWrite))
}
