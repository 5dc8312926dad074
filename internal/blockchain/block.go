// Package blockchain holds the block, transaction and nonce primitives the
// gossip transport normalizes inbound payloads against, plus their on-disk
// stores.
package blockchain

import (
	"encoding/binary"
	"errors"
	"time"

	vcrypto "github.com/veltarosnet/veltaros/internal/crypto"
)

type BlockHeader struct {
	Version    uint32
	PrevHash   [32]byte
	MerkleRoot [32]byte
	Timestamp  int64
	Nonce      uint64
}

type Block struct {
	Header       BlockHeader
	Transactions []SignedTx
}

// Hash double-hashes the canonical header serialization: fixed-size fields
// in declaration order, integers little-endian. Changing this changes every
// block id on the network.
func (h BlockHeader) Hash() [32]byte {
	buf := make([]byte, 0, 4+32+32+8+8)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(h.Timestamp))
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return vcrypto.DoubleSha256(buf)
}

// NewGenesisBlock returns the deterministic empty genesis block: epoch
// timestamp, zero prev hash, zero merkle root.
func NewGenesisBlock() Block {
	return Block{
		Header: BlockHeader{
			Version:   1,
			Timestamp: time.Unix(0, 0).UTC().Unix(),
		},
		Transactions: []SignedTx{},
	}
}

// BuildBlock assembles a block over txs, validating each and deriving the
// merkle root from their ids.
func BuildBlock(prevHash [32]byte, txs []SignedTx) (Block, error) {
	txIDs := make([]string, 0, len(txs))
	for _, tx := range txs {
		if err := ValidateSignedTx(tx); err != nil {
			return Block{}, err
		}
		txIDs = append(txIDs, tx.TxID)
	}

	root, err := MerkleRootFromTxIDs(txIDs)
	if err != nil {
		return Block{}, err
	}

	return Block{
		Header: BlockHeader{
			Version:    1,
			PrevHash:   prevHash,
			MerkleRoot: root,
			Timestamp:  time.Now().UTC().Unix(),
		},
		Transactions: txs,
	}, nil
}

// ValidateBasic checks what a block can prove about itself in isolation:
// a set timestamp, valid signatures on every transaction, and a merkle
// root consistent with the tx ids it carries.
func (b *Block) ValidateBasic() error {
	if b.Header.Timestamp <= 0 {
		return errors.New("block timestamp must be set")
	}

	txIDs := make([]string, 0, len(b.Transactions))
	for i := range b.Transactions {
		if err := ValidateSignedTx(b.Transactions[i]); err != nil {
			return err
		}
		txIDs = append(txIDs, b.Transactions[i].TxID)
	}

	root, err := MerkleRootFromTxIDs(txIDs)
	if err != nil {
		return err
	}
	if root != b.Header.MerkleRoot {
		return errors.New("merkle root mismatch")
	}
	return nil
}
