package sweeper

// Lot outcomes of one delivery.
const (
	OutcomeExpired = "expired"
	OutcomeSkipped = "skipped"
	OutcomeRetry   = "retry"
)

// MetricsCollector receives sweeper events.
type MetricsCollector interface {
	RecordScan(enqueuedLots, batches int)
	RecordLotOutcome(outcome string)
	RecordExpiredAmount(currencyID string, amount float64)
	RecordPoisonMessage()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordScan(int, int)                 {}
func (NoopMetricsCollector) RecordLotOutcome(string)             {}
func (NoopMetricsCollector) RecordExpiredAmount(string, float64) {}
func (NoopMetricsCollector) RecordPoisonMessage()                {}
