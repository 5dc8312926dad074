// Package collaborators adapts the node's domain logic (blocks, transactions,
// dapps, delegates, system info) into the small capability interfaces
// internal/transport consumes. Each collaborator here is the concrete,
// default implementation; internal/transport only ever sees its interface.
package collaborators

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/veltarosnet/veltaros/internal/blockchain"
)

// Blocks adapts *blockchain.Chain plus its block store into
// transport.BlockProcessor.
type Blocks struct {
	log   *logrus.Entry
	mu    sync.Mutex
	chain *blockchain.Chain
	store *blockchain.BlockStore
}

// NewBlocks builds a Blocks collaborator backed by a chain and a JSON block
// store at storePath.
func NewBlocks(log *logrus.Entry, storePath string) *Blocks {
	return &Blocks{
		log:   log,
		chain: blockchain.New(),
		store: blockchain.NewBlockStore(storePath),
	}
}

// ObjectNormalize decodes and validates an inbound block body.
func (b *Blocks) ObjectNormalize(raw json.RawMessage) (json.RawMessage, string, error) {
	var block blockchain.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, "", errors.Wrap(err, "collaborators: decode block")
	}

	if err := block.ValidateBasic(); err != nil {
		return nil, "", errors.Wrap(err, "collaborators: invalid block")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.chain.AddBlock(block); err != nil {
		return nil, "", errors.Wrap(err, "collaborators: add block")
	}

	stored := blockchain.MakeStoredBlock(b.chain.Height(), block)
	if err := b.store.Append(stored); err != nil {
		b.log.WithError(err).Warn("collaborators: persist block failed")
	}

	normalized, err := json.Marshal(block)
	if err != nil {
		return nil, "", err
	}
	return normalized, stored.HashHex, nil
}

// Height returns the current chain height.
func (b *Blocks) Height() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.chain.Height()), nil
}

// LoadBlocksAfter returns up to limit stored blocks with height greater than
// the height recorded under lastBlockID (0 if lastBlockID is unknown/empty).
func (b *Blocks) LoadBlocksAfter(lastBlockID string, limit int) ([]json.RawMessage, error) {
	var afterHeight uint64
	if lastBlockID != "" {
		h, ok, err := b.store.HeightOf(lastBlockID)
		if err != nil {
			return nil, errors.Wrap(err, "collaborators: resolve last block")
		}
		if ok {
			afterHeight = h
		}
	}

	stored, err := b.store.AfterHeight(afterHeight, limit)
	if err != nil {
		return nil, errors.Wrap(err, "collaborators: load blocks")
	}

	out := make([]json.RawMessage, 0, len(stored))
	for _, s := range stored {
		raw, err := json.Marshal(s)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

// CommonBlock returns the highest stored block whose hash matches one of
// ids, or an empty result if none match.
func (b *Blocks) CommonBlock(ids []string) (json.RawMessage, error) {
	best, err := b.store.HighestMatching(ids)
	if err != nil {
		return nil, errors.Wrap(err, "collaborators: load blocks")
	}
	if best == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(best)
}
