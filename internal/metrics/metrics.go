// Package metrics exposes the ledger, sweeper and HTTP metrics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements ledger.MetricsCollector and sweeper.MetricsCollector.
type Collector struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ledgerOperations        *prometheus.CounterVec
	ledgerOperationDuration *prometheus.HistogramVec
	ledgerAttempts          *prometheus.HistogramVec
	ledgerConflicts         *prometheus.CounterVec
	timestampPerturbations  prometheus.Counter

	sweeperScannedLots    prometheus.Counter
	sweeperBatches        prometheus.Counter
	sweeperLotOutcomes    *prometheus.CounterVec
	sweeperExpiredAmount  *prometheus.CounterVec
	sweeperPoisonMessages prometheus.Counter
}

// New creates the collectors and registers them on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(namespace string, reg *prometheus.Registry) *Collector {
	c := &Collector{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ledgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by transaction type and result",
		}, []string{"type", "result"}),
		ledgerOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation duration including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		ledgerAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_attempts",
			Help:      "Attempts needed per ledger operation",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}, []string{"type"}),
		ledgerConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_conflicts_total",
			Help:      "Refused writes by cancellation reason",
		}, []string{"reason"}),
		timestampPerturbations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_timestamp_perturbations_total",
			Help:      "Transaction timestamps moved after a collision",
		}),
		sweeperScannedLots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_scanned_lots_total",
			Help:      "Due lots enqueued by expiration scans",
		}),
		sweeperBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_batches_total",
			Help:      "Expiration batches enqueued",
		}),
		sweeperLotOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_lot_outcomes_total",
			Help:      "Per-lot outcomes of expiration deliveries",
		}, []string{"outcome"}),
		sweeperExpiredAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_expired_amount_total",
			Help:      "Currency removed from wallets by expiry",
		}, []string{"currency"}),
		sweeperPoisonMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_poison_messages_total",
			Help:      "Expiration batches dropped after exceeding their delivery bound",
		}),
	}

	reg.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.ledgerOperations,
		c.ledgerOperationDuration,
		c.ledgerAttempts,
		c.ledgerConflicts,
		c.timestampPerturbations,
		c.sweeperScannedLots,
		c.sweeperBatches,
		c.sweeperLotOutcomes,
		c.sweeperExpiredAmount,
		c.sweeperPoisonMessages,
	)
	return c
}

func (c *Collector) RecordOperation(txType, result string) {
	c.ledgerOperations.WithLabelValues(txType, result).Inc()
}

func (c *Collector) RecordOperationDuration(txType string, d time.Duration) {
	c.ledgerOperationDuration.WithLabelValues(txType).Observe(d.Seconds())
}

func (c *Collector) RecordAttempts(txType string, attempts int) {
	c.ledgerAttempts.WithLabelValues(txType).Observe(float64(attempts))
}

func (c *Collector) RecordConflict(reason string) {
	c.ledgerConflicts.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordTimestampPerturbation() {
	c.timestampPerturbations.Inc()
}

func (c *Collector) RecordScan(enqueuedLots, batches int) {
	c.sweeperScannedLots.Add(float64(enqueuedLots))
	c.sweeperBatches.Add(float64(batches))
}

func (c *Collector) RecordLotOutcome(outcome string) {
	c.sweeperLotOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordExpiredAmount(currencyID string, amount float64) {
	c.sweeperExpiredAmount.WithLabelValues(currencyID).Add(amount)
}

func (c *Collector) RecordPoisonMessage() {
	c.sweeperPoisonMessages.Inc()
}

// Middleware records request counts and latency per route.
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		route := "unknown"
		if r := ctx.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := ctx.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		c.httpRequestsTotal.WithLabelValues(ctx.Method(), route, strconv.Itoa(status)).Inc()
		c.httpRequestDuration.WithLabelValues(ctx.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
}
