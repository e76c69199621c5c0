package handlers

import (
	"context"
	"time"

	"promos/internal/queue"
	"promos/internal/services/ledger"
	"promos/internal/services/sweeper"
	"promos/internal/utils"
	"promos/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Scanner triggers an expiration scan.
type Scanner interface {
	Scan(ctx context.Context, now time.Time) (sweeper.ScanResult, error)
}

// QueueStats reports the depth of the expiration queue.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Depth, error)
}

// PoolStats reports redis connection pool usage.
type PoolStats interface {
	GetStats() *redis.PoolStats
}

// AdminHandler exposes operator endpoints: manual sweeps, queue depth and wallet audits.
type AdminHandler struct {
	scanner Scanner
	queue   QueueStats
	ledger  ledger.Service
	pool    PoolStats
	log     logrus.FieldLogger
	now     func() time.Time
}

// WithPoolStats enables the cache stats endpoint.
func (h *AdminHandler) WithPoolStats(pool PoolStats) *AdminHandler {
	h.pool = pool
	return h
}

// NewAdminHandler creates the handler. stats may be nil when the queue cannot report depth.
func NewAdminHandler(scanner Scanner, stats QueueStats, ledgerSvc ledger.Service, log logrus.FieldLogger) *AdminHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AdminHandler{
		scanner: scanner,
		queue:   stats,
		ledger:  ledgerSvc,
		log:     log.WithField("component", "admin_handler"),
		now:     time.Now,
	}
}

// TriggerSweep enqueues every lot due now. An optional ?at= (unix millis) scans as of another instant.
func (h *AdminHandler) TriggerSweep(c *fiber.Ctx) error {
	at := h.now()
	if ms := c.QueryInt("at", 0); ms > 0 {
		at = time.UnixMilli(int64(ms))
	}

	result, err := h.scanner.Scan(c.UserContext(), at)
	if err != nil {
		h.log.WithError(err).Error("manual expiration scan failed")
		return utils.InternalError(c, "Failed to scan expiration lots")
	}

	h.log.WithFields(logrus.Fields{
		"lots":    result.Lots,
		"batches": result.Batches,
	}).Info("manual expiration scan")
	return utils.Respond(c, fiber.StatusAccepted, fiber.Map{"scan": result})
}

func (h *AdminHandler) QueueStats(c *fiber.Ctx) error {
	if h.queue == nil {
		return utils.Respond(c, fiber.StatusNotImplemented, fiber.Map{"error": "queue stats unavailable"})
	}
	depth, err := h.queue.Stats(c.UserContext())
	if err != nil {
		h.log.WithError(err).Error("failed to read queue stats")
		return utils.InternalError(c, "Failed to read queue stats")
	}
	return utils.Success(c, fiber.Map{
		"pending":    depth.Pending,
		"processing": depth.Processing,
		"delayed":    depth.Delayed,
		"dead":       depth.Dead,
	})
}

// AuditWallet replays a wallet's transaction log against its stored balance.
func (h *AdminHandler) AuditWallet(c *fiber.Ctx) error {
	userID, currencyID := c.Params("user"), c.Params("currency")
	v := validation.New()
	v.Identifier("user_id", userID)
	v.Identifier("currency_id", currencyID)
	if !v.Valid() {
		return utils.Respond(c, fiber.StatusBadRequest, fiber.Map{
			"error":  "validation failed",
			"fields": v.Errors,
		})
	}

	result, err := h.ledger.Replay(c.UserContext(), userID, currencyID)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.Success(c, fiber.Map{"audit": result})
}

func (h *AdminHandler) CacheStats(c *fiber.Ctx) error {
	if h.pool == nil {
		return utils.Respond(c, fiber.StatusNotImplemented, fiber.Map{"error": "cache stats unavailable"})
	}
	poolStats := h.pool.GetStats()
	return utils.Success(c, fiber.Map{
		"pool_stats": fiber.Map{
			"hits":        poolStats.Hits,
			"misses":      poolStats.Misses,
			"timeouts":    poolStats.Timeouts,
			"total_conns": poolStats.TotalConns,
			"idle_conns":  poolStats.IdleConns,
			"stale_conns": poolStats.StaleConns,
		},
	})
}
