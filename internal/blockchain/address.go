package blockchain

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"

	vcrypto "github.com/veltarosnet/veltaros/internal/crypto"
)

// Addresses are hex(pubHash20 || checksum4): the first 20 bytes of SHA-256
// over the raw ed25519 public key, then the first 4 bytes of the double
// SHA-256 of that prefix. Deterministic and self-checking; no external
// encoding table.
const (
	addrHashLen     = 20
	addrChecksumLen = 4
	AddressLenBytes = addrHashLen + addrChecksumLen
)

// AddressFromPublicKey derives the address for a raw ed25519 public key.
func AddressFromPublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errors.New("invalid ed25519 public key size")
	}

	h := vcrypto.Sha256(pub)
	pubHash := h[:addrHashLen]
	check := vcrypto.DoubleSha256(pubHash)

	out := make([]byte, 0, AddressLenBytes)
	out = append(out, pubHash...)
	out = append(out, check[:addrChecksumLen]...)
	return hex.EncodeToString(out), nil
}

// AddressFromEd25519PublicKeyHex derives the address for a hex-encoded
// ed25519 public key.
func AddressFromEd25519PublicKeyHex(pubKeyHex string) (string, error) {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", errors.New("invalid public key hex")
	}
	return AddressFromPublicKey(pub)
}

// ValidateAddress checks an address's length and checksum.
func ValidateAddress(addr string) error {
	b, err := hex.DecodeString(addr)
	if err != nil {
		return errors.New("invalid address hex")
	}
	if len(b) != AddressLenBytes {
		return errors.New("invalid address length")
	}

	want := vcrypto.DoubleSha256(b[:addrHashLen])
	if !vcrypto.ConstantTimeEqual(b[addrHashLen:], want[:addrChecksumLen]) {
		return errors.New("invalid address checksum")
	}
	return nil
}
