package validation

import (
	"promos/internal/models"
)

const (
	// MaxIntentAmount caps a single earn or spend received over HTTP.
	MaxIntentAmount = 1_000_000_000.0
)

// LedgerRequest is the body of an earn or spend call.
type LedgerRequest struct {
	Amount          float64 `json:"amount"`
	ValidThru       *int64  `json:"valid_thru,omitempty"`
	ConfigurationID string  `json:"configuration_id,omitempty"`
	Timestamp       int64   `json:"timestamp,omitempty"`
}

// Earn validates an earn request for currencyID at now (unix millis).
func (v *Validator) Earn(currencyID string, req *LedgerRequest, now int64) {
	v.Identifier("currency_id", currencyID)
	v.Amount("amount", req.Amount, 0, MaxIntentAmount)
	v.Check(req.Amount > 0, "amount", "must be greater than 0")
	if req.ValidThru != nil {
		v.FutureMillis("valid_thru", *req.ValidThru, now)
	}
	if req.ConfigurationID != "" {
		v.Identifier("configuration_id", req.ConfigurationID)
	}
	v.Check(req.Timestamp >= 0, "timestamp", "must not be negative")
}

// Spend validates a spend request. A zero amount is a free spend.
func (v *Validator) Spend(currencyID string, req *LedgerRequest) {
	v.Identifier("currency_id", currencyID)
	v.Amount("amount", req.Amount, 0, MaxIntentAmount)
	v.Check(req.ValidThru == nil, "valid_thru", "only applies to "+string(models.TransactionTypeEarn))
	v.Check(req.Timestamp >= 0, "timestamp", "must not be negative")
}
