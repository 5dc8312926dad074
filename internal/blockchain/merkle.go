package blockchain

import (
	"encoding/hex"
	"errors"

	vcrypto "github.com/veltarosnet/veltaros/internal/crypto"
)

// MerkleRootFromTxIDs folds hex-encoded 32-byte tx ids into a merkle root.
// Leaves are the raw tx hashes; an odd level duplicates its last node; a
// parent is doubleSha256(left || right). An empty tx list roots to zero.
func MerkleRootFromTxIDs(txIDs []string) ([32]byte, error) {
	if len(txIDs) == 0 {
		return [32]byte{}, nil
	}

	level, err := merkleLeaves(txIDs)
	if err != nil {
		return [32]byte{}, err
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, merkleParent(level[i], level[i+1]))
		}
		level = next
	}
	return level[0], nil
}

func merkleLeaves(txIDs []string) ([][32]byte, error) {
	leaves := make([][32]byte, 0, len(txIDs))
	for _, id := range txIDs {
		b, err := hex.DecodeString(id)
		if err != nil {
			return nil, errors.New("invalid txId hex")
		}
		if len(b) != 32 {
			return nil, errors.New("invalid txId length")
		}
		var leaf [32]byte
		copy(leaf[:], b)
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

func merkleParent(left, right [32]byte) [32]byte {
	concat := make([]byte, 0, 64)
	concat = append(concat, left[:]...)
	concat = append(concat, right[:]...)
	return vcrypto.DoubleSha256(concat)
}
