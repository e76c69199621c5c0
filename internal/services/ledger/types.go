package ledger

import (
	"promos/internal/models"
	"promos/internal/repositories"
)

// Intent is a request to record one balance mutation. Amount is never negative;
// the direction comes from Type.
type Intent struct {
	UserID          string
	CurrencyID      string
	Amount          float64
	Type            models.TransactionType
	ValidThru       *int64
	ConfigurationID string
	// Timestamp is the caller's logical time in unix millis and the idempotency
	// token of the resulting transaction.
	Timestamp int64
}

// PendingWriteSet is everything a single intent will write, built from one read
// of the wallet (and lots). It is committed as a whole or not at all.
type PendingWriteSet struct {
	Intent      Intent
	Transaction models.Transaction
	// Wallet is nil for free transactions, which only insert the record.
	Wallet *repositories.WalletWrite
	Lots   []repositories.Write
}

// Free reports whether the set only inserts the transaction record.
func (p *PendingWriteSet) Free() bool {
	return p.Wallet == nil
}

// writes lays out the commit: transaction first, then wallet, lots and extra.
func (p *PendingWriteSet) writes(tx models.Transaction, extra []repositories.Write) []repositories.Write {
	out := make([]repositories.Write, 0, 2+len(p.Lots)+len(extra))
	out = append(out, repositories.TransactionWrite{Transaction: tx})
	if p.Wallet != nil {
		out = append(out, *p.Wallet)
	}
	out = append(out, p.Lots...)
	out = append(out, extra...)
	return out
}

// ReplayResult is the outcome of replaying a wallet's transaction log.
type ReplayResult struct {
	UserID       string  `json:"user_id"`
	CurrencyID   string  `json:"currency_id"`
	Transactions int     `json:"transactions"`
	Replayed     float64 `json:"replayed"`
	WalletAmount float64 `json:"wallet_amount"`
	Consistent   bool    `json:"consistent"`
}
