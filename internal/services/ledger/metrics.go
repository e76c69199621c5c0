package ledger

import "time"

// MetricsCollector receives ledger events. internal/metrics provides the
// Prometheus implementation.
type MetricsCollector interface {
	RecordOperation(txType, result string)
	RecordOperationDuration(txType string, d time.Duration)
	RecordAttempts(txType string, attempts int)
	RecordConflict(reason string)
	RecordTimestampPerturbation()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOperation(string, string)                {}
func (NoopMetricsCollector) RecordOperationDuration(string, time.Duration) {}
func (NoopMetricsCollector) RecordAttempts(string, int)                    {}
func (NoopMetricsCollector) RecordConflict(string)                         {}
func (NoopMetricsCollector) RecordTimestampPerturbation()                  {}
