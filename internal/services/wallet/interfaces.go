package wallet

import (
	"context"

	"promos/internal/models"
	"promos/internal/repositories"
)

// Service defines the wallet store
type Service interface {
	// GetBalance reads the wallet from the store. A missing wallet is returned as
	// a zero wallet with Exists=false.
	GetBalance(ctx context.Context, userID, currencyID string) (*models.Wallet, error)
	// GetCachedBalance serves read endpoints through the balance cache.
	GetCachedBalance(ctx context.Context, userID, currencyID string) (*models.Wallet, error)
	// ApplyDelta describes the conditional write that applies delta to current.
	ApplyDelta(current *models.Wallet, delta Delta) (repositories.WalletWrite, error)
	// Invalidate drops the cached balance after a commit.
	Invalidate(ctx context.Context, userID, currencyID string)
}

// CacheOperator defines the caching operations needed for balance reads
type CacheOperator interface {
	GetWallet(ctx context.Context, userID, currencyID string) (*models.Wallet, error)
	// WalletVersion changes on every InvalidateWallet.
	WalletVersion(ctx context.Context, userID, currencyID string) (int64, error)
	// CacheWallet is a no-op when the version moved since it was read.
	CacheWallet(ctx context.Context, wallet *models.Wallet, version int64) error
	InvalidateWallet(ctx context.Context, userID, currencyID string) error
}
