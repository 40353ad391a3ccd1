package domain

// CircuitBreakerState is a snapshot of a circuit breaker.
type CircuitBreakerState struct {
	Name                string
	IsTripped           bool
	TrippedAt           *int64 // ms (nullable)
	Reason              string
	ResetAfterMs        int64
	ConsecutiveFailures int
}

// Breaker categories
const (
	BreakerTrading = "trading"
	BreakerBalance = "balance"
)
