package transport

import (
	"crypto/sha256"
	"encoding/json"
	"math/big"
)

// HashSum computes the message-dedup hash: reverse of the first 8 bytes of
// SHA-256 over the UTF-8 JSON encoding of body, interpreted as a big-endian
// integer and rendered as decimal. timestamp is part of the signature for
// callers but not mixed into the digest.
func HashSum(body any, timestamp int64) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(raw)
	first8 := sum[:8]
	reversed := make([]byte, 8)
	for i, b := range first8 {
		reversed[7-i] = b
	}

	n := new(big.Int).SetBytes(reversed)
	return n.String(), nil
}
