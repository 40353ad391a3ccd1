package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature subscribes to the status of one transaction signature.
	// The channel receives at most one notification and is closed afterwards,
	// or when ctx is cancelled.
	SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification reports that a signature reached the subscribed commitment.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}
