package wallet

import (
	apperrors "promos/internal/errors"
)

// Service errors
var (
	ErrInsufficientFunds      = apperrors.ErrInsufficientFunds
	ErrInvalidAmount          = apperrors.ErrInvalidAmount
	ErrInvalidTransactionType = apperrors.ErrInvalidTransactionType
)
