package models

import (
	"fmt"
	"time"
)

// TransactionType is the closed set of balance mutations.
type TransactionType string

const (
	TransactionTypeEarn    TransactionType = "earn"
	TransactionTypeSpend   TransactionType = "spend"
	TransactionTypeExpired TransactionType = "expired"
)

// ParseTransactionType accepts only the known types.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TransactionTypeEarn, TransactionTypeSpend, TransactionTypeExpired:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// Valid reports whether t is one of the known types.
func (t TransactionType) Valid() bool {
	_, err := ParseTransactionType(string(t))
	return err == nil
}

// Sign is +1 for types that add to the wallet and -1 for types that remove from it.
func (t TransactionType) Sign() float64 {
	switch t {
	case TransactionTypeEarn:
		return 1
	case TransactionTypeSpend, TransactionTypeExpired:
		return -1
	default:
		return 0
	}
}

// Debits reports whether the type removes currency from the wallet.
func (t TransactionType) Debits() bool {
	return t.Sign() < 0
}

// Transaction is an immutable ledger entry. (UserID, TransactionTimestamp) is both
// the primary key and the idempotency token.
type Transaction struct {
	UserID               string          `gorm:"primaryKey;size:64" json:"user_id"`
	TransactionTimestamp int64           `gorm:"primaryKey;autoIncrement:false" json:"transaction_timestamp"`
	CurrencyID           string          `gorm:"not null;size:64;index" json:"currency_id"`
	Amount               float64         `gorm:"not null" json:"amount"`
	TransactionType      TransactionType `gorm:"not null;size:16" json:"transaction_type"`
	WalletRollingTotal   float64         `gorm:"not null" json:"wallet_rolling_total"`
	ValidThru            *int64          `json:"valid_thru,omitempty"`
	ConfigurationID      string          `gorm:"size:64" json:"configuration_id,omitempty"`
	EntryDate            time.Time       `gorm:"not null" json:"entry_date"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// SignedAmount is the amount with the direction implied by the type applied.
func (t *Transaction) SignedAmount() float64 {
	return t.TransactionType.Sign() * t.Amount
}
