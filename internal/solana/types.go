package solana

// TokenBalance is an SPL token balance entry from transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw base units
	Decimals     int
}

// TokenAmount is an SPL token balance in base units.
type TokenAmount struct {
	Amount   uint64
	Decimals int
	Accounts int // token accounts summed
}

// PerformanceSample from getRecentPerformanceSamples.
type PerformanceSample struct {
	Slot             uint64
	NumTransactions  uint64
	NumSlots         uint64
	SamplePeriodSecs uint64
}

// TPS returns transactions per second for the sample period.
func (s PerformanceSample) TPS() float64 {
	if s.SamplePeriodSecs == 0 {
		return 0
	}
	return float64(s.NumTransactions) / float64(s.SamplePeriodSecs)
}

// SimulationResult from simulateTransaction.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus string
}

// Reached reports whether the status satisfies the given commitment.
func (s *SignatureStatus) Reached(commitment string) bool {
	if s == nil {
		return false
	}
	switch commitment {
	case CommitmentFinalized:
		return s.ConfirmationStatus == CommitmentFinalized
	case CommitmentConfirmed:
		return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
	default:
		return s.ConfirmationStatus != ""
	}
}
