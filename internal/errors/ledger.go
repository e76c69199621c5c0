package errors

var (
	ErrValidation = &DomainError{
		Code:    "VALIDATION_FAILED",
		Message: "invalid ledger intent",
		Kind:    KindValidation,
	}
	ErrInvalidAmount = &DomainError{
		Code:    "INVALID_AMOUNT",
		Message: "invalid amount",
		Kind:    KindValidation,
	}
	ErrInvalidTransactionType = &DomainError{
		Code:    "INVALID_TRANSACTION_TYPE",
		Message: "invalid transaction type",
		Kind:    KindValidation,
	}
	ErrInsufficientFunds = &DomainError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient wallet balance",
		Kind:    KindBusiness,
	}
	ErrLotAlreadyExpired = &DomainError{
		Code:    "LOT_ALREADY_EXPIRED",
		Message: "expiration lot already expired",
		Kind:    KindBusiness,
	}
	ErrLotNotFound = &DomainError{
		Code:    "LOT_NOT_FOUND",
		Message: "expiration lot not found",
		Kind:    KindBusiness,
	}
	ErrConflict = &DomainError{
		Code:    "CONFLICT",
		Message: "concurrent modification detected",
		Kind:    KindTransient,
	}
	ErrThrottled = &DomainError{
		Code:    "THROTTLED",
		Message: "store throttled the request",
		Kind:    KindTransient,
	}
)
