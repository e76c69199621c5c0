package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"promos/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrThrottled = errors.New("store throttled")
)

// LedgerStore is the persistence boundary of the ledger. Reads are plain lookups;
// every mutation goes through AtomicWrite so that transaction, wallet and lot
// records change together or not at all.
type LedgerStore interface {
	GetWallet(ctx context.Context, userID, currencyID string) (*models.Wallet, error)
	GetLot(ctx context.Context, key models.LotKey) (*models.ExpirationLot, error)
	ListLots(ctx context.Context, userID, currencyID string, activeOnly bool) ([]models.ExpirationLot, error)
	ListDueLots(ctx context.Context, now int64, limit int) ([]models.ExpirationLot, error)
	GetTransaction(ctx context.Context, userID string, timestamp int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID, currencyID string) ([]models.Transaction, error)

	// AtomicWrite applies all writes or none. A failed condition is reported as a
	// *TransactionCanceledError with one reason per write; throttling as ErrThrottled.
	AtomicWrite(ctx context.Context, writes []Write) error
}

// Write is one conditional mutation inside an AtomicWrite. The concrete types are
// WalletWrite, LotWrite, TransactionWrite and DeleteWrite.
type Write interface {
	isWrite()
	String() string
}

// WalletWrite inserts a wallet or applies Delta to it. An update is accepted only
// while the stored amount still equals ExpectedAmount.
type WalletWrite struct {
	UserID             string
	CurrencyID         string
	Insert             bool
	ExpectedAmount     float64
	Delta              float64
	AccumulatedDelta   float64
	UsesExpirationLots bool
	RequireNonNegative bool
}

// ResultingAmount is the wallet amount after the write is applied.
func (w WalletWrite) ResultingAmount() float64 {
	return w.ExpectedAmount + w.Delta
}

func (WalletWrite) isWrite() {}

func (w WalletWrite) String() string {
	op := "update"
	if w.Insert {
		op = "insert"
	}
	return fmt.Sprintf("wallet %s %s/%s %.2f%+.2f", op, w.UserID, w.CurrencyID, w.ExpectedAmount, w.Delta)
}

// LotWrite inserts a lot or replaces its mutable fields. ExpectedAmount, when set,
// must match the stored amount; ExpectNotExpired requires AlreadyExpired=false.
type LotWrite struct {
	Lot              models.ExpirationLot
	Insert           bool
	ExpectedAmount   *float64
	ExpectNotExpired bool
}

func (LotWrite) isWrite() {}

func (w LotWrite) String() string {
	op := "update"
	if w.Insert {
		op = "insert"
	}
	return fmt.Sprintf("lot %s %s/%s@%d", op, w.Lot.UserID, w.Lot.CurrencyID, w.Lot.ValidThru)
}

// TransactionWrite inserts a ledger entry if no entry exists for its key.
type TransactionWrite struct {
	Transaction models.Transaction
}

func (TransactionWrite) isWrite() {}

func (w TransactionWrite) String() string {
	return fmt.Sprintf("transaction %s@%d %s %.2f", w.Transaction.UserID, w.Transaction.TransactionTimestamp,
		w.Transaction.TransactionType, w.Transaction.Amount)
}

// DeleteWrite removes a lot under the same conditions a LotWrite can carry.
type DeleteWrite struct {
	Key              models.LotKey
	ExpectedAmount   *float64
	ExpectNotExpired bool
}

func (DeleteWrite) isWrite() {}

func (w DeleteWrite) String() string {
	return fmt.Sprintf("lot delete %s/%s@%d", w.Key.UserID, w.Key.CurrencyID, w.Key.ValidThru)
}

// CancellationReason explains why a single write in an AtomicWrite was refused.
type CancellationReason string

const (
	ReasonNone                   CancellationReason = "None"
	ReasonConditionalCheckFailed CancellationReason = "ConditionalCheckFailed"
	ReasonDuplicateKey           CancellationReason = "DuplicateKey"
	ReasonInsufficientBalance    CancellationReason = "InsufficientBalance"
)

// TransactionCanceledError reports which writes of an AtomicWrite failed their
// condition. Reasons is index-aligned with the submitted writes.
type TransactionCanceledError struct {
	Reasons []CancellationReason
}

func (e *TransactionCanceledError) Error() string {
	failed := make([]string, 0, len(e.Reasons))
	for i, r := range e.Reasons {
		if r != ReasonNone {
			failed = append(failed, fmt.Sprintf("[%d]%s", i, r))
		}
	}
	return "atomic write canceled: " + strings.Join(failed, ", ")
}

// Reason returns the reason recorded for write i.
func (e *TransactionCanceledError) Reason(i int) CancellationReason {
	if i < 0 || i >= len(e.Reasons) {
		return ReasonNone
	}
	return e.Reasons[i]
}

// Failed returns the indexes of the writes that were refused.
func (e *TransactionCanceledError) Failed() []int {
	var idx []int
	for i, r := range e.Reasons {
		if r != ReasonNone {
			idx = append(idx, i)
		}
	}
	return idx
}

func newCanceled(n, index int, reason CancellationReason) *TransactionCanceledError {
	reasons := make([]CancellationReason, n)
	for i := range reasons {
		reasons[i] = ReasonNone
	}
	reasons[index] = reason
	return &TransactionCanceledError{Reasons: reasons}
}
