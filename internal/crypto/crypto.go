// Package crypto bundles the hashing and ed25519 primitives the rest of the
// node shares: transaction ids (SHA-256) and block hashes (double SHA-256), wallet
// address checksums, and the signing keys behind both transactions and the
// node's own identity record.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

type PrivateKey = ed25519.PrivateKey
type PublicKey = ed25519.PublicKey

// Sha256 hashes data once.
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DoubleSha256 hashes data twice. Block headers and address checksums use
// the double form.
func DoubleSha256(data []byte) [32]byte {
	h := sha256.Sum256(data)
	return sha256.Sum256(h[:])
}

// Hex32 renders a 32-byte digest as lowercase hex.
func Hex32(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// DecodeHex decodes s, rejecting empty results so a blank key or signature
// field can't slip through as a zero-length byte slice.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("decoded hex is empty")
	}
	return b, nil
}

// ConstantTimeEqual compares a and b without leaking how far they match.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateEd25519Keypair produces a fresh signing keypair.
func GenerateEd25519Keypair() (PublicKey, PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SignEd25519 signs msg with priv, rejecting malformed keys up front rather
// than letting ed25519.Sign panic on them.
func SignEd25519(priv PrivateKey, msg []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key size")
	}
	return ed25519.Sign(priv, msg), nil
}

// VerifyEd25519 reports whether sig is a valid signature of msg under pub.
// Malformed keys or signatures verify as false, never panic.
func VerifyEd25519(pub PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
