package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"
)

// buildV0Message builds a minimal v0 message with the given static keys and
// one required signer.
func buildV0Message(keys ...[]byte) []byte {
	var msg bytes.Buffer
	msg.WriteByte(versionPrefix) // v0
	msg.Write([]byte{1, 0, 1})   // header
	msg.Write(encodeCompactU16(len(keys)))
	for _, k := range keys {
		msg.Write(k)
	}
	msg.Write(make([]byte, 32)) // recent blockhash
	msg.WriteByte(0)            // instructions
	msg.WriteByte(0)            // address table lookups
	return msg.Bytes()
}

func unsignedTx(message []byte) []byte {
	raw := append([]byte{1}, make([]byte, signatureLen)...)
	return append(raw, message...)
}

func TestWireTransaction_SignAndSerialize(t *testing.T) {
	kp, err := NewKeypairFromSeed(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewKeypairFromSeed: %v", err)
	}
	program := bytes.Repeat([]byte{9}, 32)
	message := buildV0Message(kp.PublicKeyBytes(), program)

	tx, err := ParseTransaction(unsignedTx(message))
	if err != nil {
		t.Fatalf("ParseTransaction: %v", err)
	}
	if tx.Version() != 0 {
		t.Errorf("expected version 0, got %d", tx.Version())
	}
	if keys := tx.AccountKeys(); len(keys) != 2 || keys[0] != kp.PublicKey() {
		t.Errorf("unexpected account keys: %v", keys)
	}

	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(kp.PublicKeyBytes(), tx.Message, tx.Signatures[0]) {
		t.Error("signature does not verify")
	}

	// Round trip through base64.
	decoded, err := DecodeTransaction(tx.Base64())
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if decoded.Signature() != tx.Signature() {
		t.Errorf("signature mismatch after round trip")
	}
	if !bytes.Equal(decoded.Message, message) {
		t.Error("message changed after round trip")
	}
}

func TestWireTransaction_SignerNotFound(t *testing.T) {
	kp, _ := NewKeypairFromSeed(bytes.Repeat([]byte{1}, 32))
	other, _ := NewKeypairFromSeed(bytes.Repeat([]byte{2}, 32))

	tx, err := ParseTransaction(unsignedTx(buildV0Message(kp.PublicKeyBytes())))
	if err != nil {
		t.Fatalf("ParseTransaction: %v", err)
	}
	if err := tx.Sign(other); !errors.Is(err, ErrSignerNotFound) {
		t.Errorf("expected ErrSignerNotFound, got %v", err)
	}
}

func TestParseTransaction_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"truncated signatures", []byte{2, 1, 2, 3}},
		{"truncated header", unsignedTx([]byte{versionPrefix, 1})},
		{"truncated keys", unsignedTx([]byte{1, 0, 0, 3, 1, 2})},
		{"signature count mismatch", append([]byte{0}, buildV0Message(make([]byte, 32))...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTransaction(tt.raw); !errors.Is(err, ErrMalformedTransaction) {
				t.Errorf("expected ErrMalformedTransaction, got %v", err)
			}
		})
	}

	if _, err := DecodeTransaction("not base64!"); !errors.Is(err, ErrMalformedTransaction) {
		t.Errorf("expected ErrMalformedTransaction for bad base64, got %v", err)
	}
}

func TestCompactU16(t *testing.T) {
	for _, v := range []int{0, 1, 127, 128, 255, 16383, 16384, 65535} {
		enc := encodeCompactU16(v)
		got, n, err := decodeCompactU16(enc)
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v || n != len(enc) {
			t.Errorf("value %d: got %d (%d bytes), encoded %d bytes", v, got, n, len(enc))
		}
	}
}
