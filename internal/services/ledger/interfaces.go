package ledger

import (
	"context"

	"promos/internal/models"
	"promos/internal/repositories"
)

// BuildFunc reads current state and returns a pending set plus extra writes to
// commit with it.
type BuildFunc func(ctx context.Context) (*PendingWriteSet, []repositories.Write, error)

// Service defines the transaction ledger
type Service interface {
	// Record validates the intent and commits it, retrying transient failures.
	Record(ctx context.Context, in Intent) (*models.Transaction, error)
	Earn(ctx context.Context, in Intent) (*models.Transaction, error)
	Spend(ctx context.Context, in Intent) (*models.Transaction, error)

	// PrepareEarnOrSpend reads current state and builds the writes for in
	// without committing anything.
	PrepareEarnOrSpend(ctx context.Context, in Intent) (*PendingWriteSet, error)
	// Commit submits set plus extra in one atomic write. Timestamp collisions are
	// resolved here; any other conflict is returned to the caller.
	Commit(ctx context.Context, set *PendingWriteSet, extra ...repositories.Write) (*models.Transaction, error)
	// Apply commits what build returns, retrying transient failures the same way
	// Record does. build runs again on every attempt so it sees fresh state.
	Apply(ctx context.Context, build BuildFunc) (*models.Transaction, error)

	History(ctx context.Context, userID, currencyID string) ([]models.Transaction, error)
	// Replay sums the signed transaction amounts and compares them to the wallet.
	Replay(ctx context.Context, userID, currencyID string) (*ReplayResult, error)
}
