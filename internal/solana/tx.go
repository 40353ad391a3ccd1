package solana

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	signatureLen = 64
	pubkeyLen    = 32

	// versionPrefix marks a versioned message (high bit of the first byte).
	versionPrefix = 0x80
)

// Wire transaction errors.
var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrSignerNotFound       = errors.New("signer not found in transaction")
)

// WireTransaction is a serialized legacy or v0 transaction split into its
// signature slots and the message bytes those signatures cover.
type WireTransaction struct {
	Signatures [][]byte
	Message    []byte

	version        int // -1 for legacy
	requiredSigs   int
	staticAccounts [][]byte
}

// DecodeTransaction parses a base64 wire transaction as returned by a swap router.
func DecodeTransaction(b64 string) (*WireTransaction, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedTransaction, err)
	}
	return ParseTransaction(raw)
}

// ParseTransaction parses raw wire bytes.
func ParseTransaction(raw []byte) (*WireTransaction, error) {
	numSigs, n, err := decodeCompactU16(raw)
	if err != nil {
		return nil, err
	}
	off := n
	if len(raw) < off+numSigs*signatureLen {
		return nil, fmt.Errorf("%w: truncated signatures", ErrMalformedTransaction)
	}

	tx := &WireTransaction{Signatures: make([][]byte, numSigs)}
	for i := 0; i < numSigs; i++ {
		sig := make([]byte, signatureLen)
		copy(sig, raw[off:off+signatureLen])
		tx.Signatures[i] = sig
		off += signatureLen
	}
	tx.Message = append([]byte(nil), raw[off:]...)

	if err := tx.parseMessageHeader(); err != nil {
		return nil, err
	}
	if tx.requiredSigs != numSigs {
		return nil, fmt.Errorf("%w: %d signature slots for %d required signers",
			ErrMalformedTransaction, numSigs, tx.requiredSigs)
	}
	return tx, nil
}

func (t *WireTransaction) parseMessageHeader() error {
	msg := t.Message
	off := 0
	t.version = -1
	if len(msg) > 0 && msg[0]&versionPrefix != 0 {
		t.version = int(msg[0] &^ versionPrefix)
		off++
	}
	if len(msg) < off+3 {
		return fmt.Errorf("%w: truncated message header", ErrMalformedTransaction)
	}
	t.requiredSigs = int(msg[off])
	off += 3

	numKeys, n, err := decodeCompactU16(msg[off:])
	if err != nil {
		return err
	}
	off += n
	if len(msg) < off+numKeys*pubkeyLen {
		return fmt.Errorf("%w: truncated account keys", ErrMalformedTransaction)
	}
	t.staticAccounts = make([][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		t.staticAccounts[i] = msg[off : off+pubkeyLen]
		off += pubkeyLen
	}
	return nil
}

// Version returns the message version, or -1 for legacy messages.
func (t *WireTransaction) Version() int {
	return t.version
}

// AccountKeys returns the base58 static account keys of the message.
func (t *WireTransaction) AccountKeys() []string {
	keys := make([]string, len(t.staticAccounts))
	for i, k := range t.staticAccounts {
		keys[i] = base58.Encode(k)
	}
	return keys
}

// Sign places kp's signature in the slot matching its position among the
// required signers.
func (t *WireTransaction) Sign(kp *Keypair) error {
	pub := kp.PublicKeyBytes()
	for i := 0; i < t.requiredSigs && i < len(t.staticAccounts); i++ {
		if bytes.Equal(t.staticAccounts[i], pub) {
			t.Signatures[i] = kp.Sign(t.Message)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSignerNotFound, kp.PublicKey())
}

// Signature returns the base58 transaction id (the fee payer signature).
func (t *WireTransaction) Signature() string {
	if len(t.Signatures) == 0 {
		return ""
	}
	return base58.Encode(t.Signatures[0])
}

// Serialize encodes the transaction to wire bytes.
func (t *WireTransaction) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(encodeCompactU16(len(t.Signatures)))
	for _, sig := range t.Signatures {
		buf.Write(sig)
	}
	buf.Write(t.Message)
	return buf.Bytes()
}

// Base64 encodes the serialized transaction for sendTransaction.
func (t *WireTransaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Serialize())
}

// decodeCompactU16 reads a shortvec length prefix.
func decodeCompactU16(b []byte) (int, int, error) {
	var v int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformedTransaction)
		}
		elem := int(b[i])
		v |= (elem & 0x7f) << (7 * i)
		if elem&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: length prefix overflow", ErrMalformedTransaction)
}

func encodeCompactU16(v int) []byte {
	out := make([]byte, 0, 3)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, elem)
		}
		out = append(out, elem|0x80)
	}
}
