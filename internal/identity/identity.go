// Package identity persists this node's own ed25519 keypair and the public
// record advertised alongside it (distinct from the ed25519 keys wallets use
// to sign transactions in internal/blockchain).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Record is the public metadata published alongside a node's identity key.
type Record struct {
	PublicKeyHex string    `json:"publicKeyHex"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LoadOrCreateKey reads the hex-encoded ed25519 private key at path,
// generating and persisting a new one if it doesn't exist.
func LoadOrCreateKey(path string) (ed25519.PrivateKey, error) {
	if b, err := os.ReadFile(path); err == nil {
		raw, err := hex.DecodeString(trimSpaceASCII(string(b)))
		if err != nil {
			return nil, errors.New("identity: invalid key hex")
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, errors.New("identity: invalid key size")
		}
		return ed25519.PrivateKey(raw), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "identity: create key directory")
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "identity: generate key")
	}

	if err := writeAtomic(path, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return nil, err
	}
	return priv, nil
}

// EnsureRecord writes (or leaves untouched, if already current) the public
// record for priv at path.
func EnsureRecord(path string, priv ed25519.PrivateKey) error {
	if len(priv) != ed25519.PrivateKeySize {
		return errors.New("identity: invalid key size")
	}
	pub := priv.Public().(ed25519.PublicKey)
	pubHex := hex.EncodeToString(pub)

	if raw, err := os.ReadFile(path); err == nil {
		var rec Record
		if json.Unmarshal(raw, &rec) == nil && rec.PublicKeyHex == pubHex {
			return nil
		}
	}

	now := time.Now().UTC()
	rec := Record{PublicKeyHex: pubHex, CreatedAt: now, UpdatedAt: now}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data, 0o600)
}

func writeAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "identity: create directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return errors.Wrap(err, "identity: write file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "identity: rename file")
	}
	_ = os.Chmod(path, mode)
	return nil
}

func trimSpaceASCII(s string) string {
	for len(s) > 0 && isASCIISpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isASCIISpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func isASCIISpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
