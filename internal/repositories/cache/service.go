package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"promos/internal/config"
	"promos/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the shared redis client used by the cache and the work queue.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// CacheService is a JSON read-through cache in front of wallet balances. It is
// never consulted by the ledger's conditional writes, only by read endpoints.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

// Base operations
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, s.ttl)
}

func (s *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Key generation
func (s *CacheService) GenerateKey(entityType, keyType string, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entityType, keyType, value)
}

func (s *CacheService) walletKey(userID, currencyID string) string {
	return s.GenerateKey("wallet", userID, currencyID)
}

func (s *CacheService) walletVersionKey(userID, currencyID string) string {
	return s.GenerateKey("walletver", userID, currencyID)
}

// walletVersionTTL bounds how long an invalidation counter outlives its last bump.
const walletVersionTTL = 24 * time.Hour

// WalletVersion returns the invalidation counter for a wallet. Read it before
// reading the store and pass it to CacheWallet.
func (s *CacheService) WalletVersion(ctx context.Context, userID, currencyID string) (int64, error) {
	version, err := s.client.Get(ctx, s.walletVersionKey(userID, currencyID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get wallet version: %w", err)
	}
	return version, nil
}

// CacheWallet stores wallet unless the wallet was invalidated after version was
// read, in which case the value may predate the commit and is dropped.
func (s *CacheService) CacheWallet(ctx context.Context, wallet *models.Wallet, version int64) error {
	if wallet == nil {
		return errors.New("cannot cache nil wallet")
	}
	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	versionKey := s.walletVersionKey(wallet.UserID, wallet.CurrencyID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.walletKey(wallet.UserID, wallet.CurrencyID), data, s.ttl)
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cache wallet: %w", err)
	}
	return nil
}

// GetWallet returns the cached wallet, or nil without error on a miss.
func (s *CacheService) GetWallet(ctx context.Context, userID, currencyID string) (*models.Wallet, error) {
	var wallet models.Wallet
	found, err := s.Get(ctx, s.walletKey(userID, currencyID), &wallet)
	if err != nil || !found {
		return nil, err
	}
	wallet.Exists = true
	return &wallet, nil
}

// InvalidateWallet drops the cached wallet and bumps its version so a read
// that started before the invalidation cannot cache its stale result.
func (s *CacheService) InvalidateWallet(ctx context.Context, userID, currencyID string) error {
	versionKey := s.walletVersionKey(userID, currencyID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, walletVersionTTL)
		pipe.Del(ctx, s.walletKey(userID, currencyID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate wallet: %w", err)
	}
	return nil
}

// HealthCheck pings redis.
func (s *CacheService) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// GetStats returns the client pool statistics.
func (s *CacheService) GetStats() *redis.PoolStats {
	return s.client.PoolStats()
}

// Close closes the Redis client connection
func (s *CacheService) Close() error {
	return s.client.Close()
}
