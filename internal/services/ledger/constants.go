package ledger

// Operation results reported to the metrics collector.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Position of the transaction record in every commit.
const transactionIndex = 0
