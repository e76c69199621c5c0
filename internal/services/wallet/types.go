package wallet

import "promos/internal/models"

// Delta is a single balance change. Amount is never negative; the direction comes
// from Type.
type Delta struct {
	Type               models.TransactionType
	Amount             float64
	UsesExpirationLots bool
}
