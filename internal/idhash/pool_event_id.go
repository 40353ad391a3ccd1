// Package idhash derives deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"solana-pool-trader/internal/domain"
)

// ComputePoolEventID computes a deterministic id for a pool creation event.
// Formula: SHA256(lower(dex)|pool|min(tokenA,tokenB)|max(tokenA,tokenB))
// The signature is left out so that the same pool announced by two feeds,
// or with its tokens in either order, maps to one id.
// Returns hex-encoded hash (64 characters).
func ComputePoolEventID(ev domain.NewPoolEvent) string {
	a, b := ev.TokenA, ev.TokenB
	if b < a {
		a, b = b, a
	}

	data := fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(ev.DEX),
		ev.PoolAddress,
		a,
		b,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
