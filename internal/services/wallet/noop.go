package wallet

import (
	"context"

	"promos/internal/models"
)

// NoopCache is used when no balance cache is configured.
type NoopCache struct{}

func (NoopCache) GetWallet(context.Context, string, string) (*models.Wallet, error) { return nil, nil }
func (NoopCache) WalletVersion(context.Context, string, string) (int64, error)      { return 0, nil }
func (NoopCache) CacheWallet(context.Context, *models.Wallet, int64) error          { return nil }
func (NoopCache) InvalidateWallet(context.Context, string, string) error            { return nil }
