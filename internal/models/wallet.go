package models

import (
	"time"
)

// Wallet holds the spendable balance of one currency for one user.
type Wallet struct {
	UserID                 string    `gorm:"primaryKey;size:64" json:"user_id"`
	CurrencyID             string    `gorm:"primaryKey;size:64" json:"currency_id"`
	Amount                 float64   `gorm:"not null;default:0" json:"amount"`
	TotalAmountAccumulated float64   `gorm:"not null;default:0" json:"total_amount_accumulated"`
	UsesExpirationLots     bool      `gorm:"not null;default:false" json:"uses_expiration_lots"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`

	// Exists is false for the zero wallet returned when no record is stored yet.
	Exists bool `gorm:"-" json:"-"`
}

func (Wallet) TableName() string {
	return "wallets"
}
