package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Keypair errors.
var (
	ErrInvalidKeypair = errors.New("invalid keypair")
	ErrInvalidAddress = errors.New("invalid address")
)

// Keypair is an ed25519 signing key with its base58 public address.
type Keypair struct {
	private ed25519.PrivateKey
	public  string
}

// ParseKeypair parses a 64-byte secret key given either as a base58 string
// or as a JSON byte array (solana-keygen file format).
func ParseKeypair(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKeypair)
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
		raw = decoded
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, ed25519.PrivateKeySize, len(raw))
	}

	priv := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	pub := priv.Public().(ed25519.PublicKey)
	if !bytes.Equal(pub, raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: public key does not match secret", ErrInvalidKeypair)
	}
	if !IsOnCurve(pub) {
		return nil, fmt.Errorf("%w: public key not on curve", ErrInvalidKeypair)
	}

	return &Keypair{private: priv, public: base58.Encode(pub)}, nil
}

// LoadKeypairFile reads a keypair from a solana-keygen JSON file.
func LoadKeypairFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	return ParseKeypair(string(data))
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKeypair, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{private: priv, public: base58.Encode(pub)}, nil
}

// PublicKey returns the base58 public address.
func (k *Keypair) PublicKey() string {
	return k.public
}

// PublicKeyBytes returns the raw 32-byte public key.
func (k *Keypair) PublicKeyBytes() []byte {
	return []byte(k.private.Public().(ed25519.PublicKey))
}

// Sign signs message with the secret key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// IsOnCurve reports whether point is a valid compressed edwards25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// ValidateAddress checks that s is a base58-encoded 32-byte address.
func ValidateAddress(s string) error {
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidAddress, len(decoded))
	}
	return nil
}

// ValidateWallet checks that s is a base58 address on the ed25519 curve.
// Program-derived addresses are off-curve and cannot sign.
func ValidateWallet(s string) error {
	if err := ValidateAddress(s); err != nil {
		return err
	}
	decoded, _ := base58.Decode(s)
	if !IsOnCurve(decoded) {
		return fmt.Errorf("%w: not on curve", ErrInvalidAddress)
	}
	return nil
}
