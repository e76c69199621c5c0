package ledger

import (
	"time"

	"promos/internal/config"
	apperrors "promos/internal/errors"
	"promos/internal/models"

	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

func normalizeLedgerConfig(cfg config.LedgerConfig) config.LedgerConfig {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 20 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.TimestampRetries < 0 {
		cfg.TimestampRetries = 0
	}
	if cfg.MaxTimestampOffset < 1 {
		cfg.MaxTimestampOffset = 99
	}
	return cfg
}

// NewConflictRetryPolicy retries an operation only while it fails with a
// transient domain error, with jittered exponential backoff between attempts.
func NewConflictRetryPolicy(cfg config.LedgerConfig) retrypolicy.RetryPolicy[*models.Transaction] {
	cfg = normalizeLedgerConfig(cfg)
	return retrypolicy.NewBuilder[*models.Transaction]().
		HandleIf(func(_ *models.Transaction, err error) bool {
			return apperrors.IsRetryable(err)
		}).
		WithMaxRetries(cfg.MaxAttempts-1).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()
}
