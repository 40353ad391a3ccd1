package execution

import (
	"errors"
	"fmt"

	"solana-pool-trader/internal/domain"
	"solana-pool-trader/internal/jupiter"
	"solana-pool-trader/internal/solana"
)

// Kind classifies an execution failure.
type Kind string

// Failure kinds
const (
	KindValidation          Kind = "validation"
	KindQuoteRejected       Kind = "quote_rejected"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindNetwork             Kind = "network"
	KindTransactionFailed   Kind = "transaction_failed"
	KindCircuitOpen         Kind = "circuit_open"
	KindWalletNotReady      Kind = "wallet_not_ready"
	KindConfirmTimeout      Kind = "confirm_timeout"
	KindNoHoldings          Kind = domain.ErrorKindNoHoldings
)

// Error is a classified execution failure.
type Error struct {
	Kind Kind
	Op   string // pipeline step that failed
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindTransactionFailed
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// classify maps a collaborator error to a Kind.
func classify(op string, err error) *Error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	var apiErr *jupiter.APIError
	switch {
	case errors.Is(err, solana.ErrConfirmTimeout):
		return newError(KindConfirmTimeout, op, err)
	case errors.Is(err, solana.ErrTransactionFailed),
		errors.Is(err, solana.ErrMalformedTransaction):
		return newError(KindTransactionFailed, op, err)
	case errors.Is(err, solana.ErrSignerNotFound),
		errors.Is(err, solana.ErrInvalidKeypair):
		return newError(KindWalletNotReady, op, err)
	case errors.Is(err, jupiter.ErrInvalidQuote):
		return newError(KindQuoteRejected, op, err)
	case errors.As(err, &apiErr) && !apiErr.Temporary():
		return newError(KindQuoteRejected, op, err)
	default:
		return newError(KindNetwork, op, err)
	}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
