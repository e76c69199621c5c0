// Package errors defines the typed domain errors shared by the ledger, the stores
// and the sweeper. Every error carries a Kind so callers can tell retryable
// conflicts from permanent rejections without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a DomainError.
type Kind string

const (
	KindValidation Kind = "validation"
	KindBusiness   Kind = "business"
	KindTransient  Kind = "transient"
)

// DomainError is a coded error. Two DomainErrors match under errors.Is when their
// codes are equal, so wrapped or detailed copies still match the sentinels.
type DomainError struct {
	Code    string
	Message string
	Kind    Kind
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e carrying cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Kind: e.Kind, Err: cause}
}

// Withf returns a copy of e with a more specific message.
func (e *DomainError) Withf(format string, args ...interface{}) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: fmt.Sprintf("%s: %s", e.Message, fmt.Sprintf(format, args...)),
		Kind:    e.Kind,
		Err:     e.Err,
	}
}

// KindOf returns the kind of the first DomainError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
