package solana

import "context"

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// RPCClient defines the Solana JSON-RPC surface used by the trader.
type RPCClient interface {
	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenBalance returns the total balance of mint held by owner across its token accounts.
	GetTokenBalance(ctx context.Context, owner, mint string) (*TokenAmount, error)

	// GetSlot returns the current slot at the confirmed commitment.
	GetSlot(ctx context.Context) (uint64, error)

	// GetRecentPerformanceSamples returns up to limit recent performance samples, newest first.
	GetRecentPerformanceSamples(ctx context.Context, limit int) ([]PerformanceSample, error)

	// SimulateTransaction simulates a signed base64 transaction.
	SimulateTransaction(ctx context.Context, txBase64 string) (*SimulationResult, error)

	// SendTransaction submits a signed base64 transaction and returns its signature.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)

	// GetSignatureStatuses returns statuses for the given signatures; unknown signatures map to nil.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetTransaction retrieves a confirmed transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}
