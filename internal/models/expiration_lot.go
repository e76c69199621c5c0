package models

import "time"

// ExpirationLot is a time-bounded slice of a wallet's balance. Earns that share a
// validity window and configuration are merged into the same lot.
type ExpirationLot struct {
	UserID          string    `gorm:"primaryKey;size:64" json:"user_id"`
	CurrencyID      string    `gorm:"primaryKey;size:64" json:"currency_id"`
	ValidThru       int64     `gorm:"primaryKey;autoIncrement:false;index:idx_lots_due,priority:2" json:"valid_thru"`
	ConfigurationID string    `gorm:"primaryKey;size:64" json:"configuration_id"`
	Amount          float64   `gorm:"not null;default:0" json:"amount"`
	SpentAmount     float64   `gorm:"not null;default:0" json:"spent_amount"`
	AlreadyExpired  bool      `gorm:"not null;default:false;index:idx_lots_due,priority:1" json:"already_expired"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ExpirationLot) TableName() string {
	return "expiration_lots"
}

// Remaining is the part of the lot that has not been spent yet.
func (l *ExpirationLot) Remaining() float64 {
	if l.SpentAmount >= l.Amount {
		return 0
	}
	return l.Amount - l.SpentAmount
}

// IsDue reports whether the lot's window closed before now (unix millis).
func (l *ExpirationLot) IsDue(now int64) bool {
	return !l.AlreadyExpired && l.ValidThru < now
}

// Key returns the composite identity of the lot.
func (l *ExpirationLot) Key() LotKey {
	return LotKey{
		UserID:          l.UserID,
		CurrencyID:      l.CurrencyID,
		ValidThru:       l.ValidThru,
		ConfigurationID: l.ConfigurationID,
	}
}

// LotKey identifies an expiration lot.
type LotKey struct {
	UserID          string `json:"user_id"`
	CurrencyID      string `json:"currency_id"`
	ValidThru       int64  `json:"valid_thru"`
	ConfigurationID string `json:"configuration_id"`
}
