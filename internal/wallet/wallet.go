// Package wallet manages the ed25519 keypairs users sign transactions with:
// generation, hex key files on disk, and address derivation (delegated to
// internal/blockchain so the wallet and the chain can never disagree on the
// address format).
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/veltarosnet/veltaros/internal/blockchain"
)

// Keypair is a freshly generated or loaded signing keypair.
type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate produces a new random keypair.
func Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

// AddressFromPublicKey derives the wallet's address.
func AddressFromPublicKey(pub ed25519.PublicKey) (string, error) {
	return blockchain.AddressFromPublicKey(pub)
}

// SavePrivateKeyHex writes priv to path as hex, 0600, via temp file +
// rename so a crash can't leave a truncated key behind.
func SavePrivateKeyHex(path string, priv ed25519.PrivateKey) error {
	if len(priv) != ed25519.PrivateKeySize {
		return errors.New("invalid ed25519 private key size")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	_ = os.Chmod(path, 0o600)
	return nil
}

// LoadPrivateKeyHex reads a key file written by SavePrivateKeyHex.
func LoadPrivateKeyHex(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("invalid key file hex: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d want %d", len(b), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(b), nil
}
