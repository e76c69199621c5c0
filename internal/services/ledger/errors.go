package ledger

import (
	apperrors "promos/internal/errors"
)

// Service errors
var (
	ErrValidation             = apperrors.ErrValidation
	ErrInvalidAmount          = apperrors.ErrInvalidAmount
	ErrInvalidTransactionType = apperrors.ErrInvalidTransactionType
	ErrInsufficientFunds      = apperrors.ErrInsufficientFunds
	ErrLotAlreadyExpired      = apperrors.ErrLotAlreadyExpired
	ErrConflict               = apperrors.ErrConflict
	ErrThrottled              = apperrors.ErrThrottled
)
