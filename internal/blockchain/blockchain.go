package blockchain

// Chain tracks the locally applied portion of the chain: the genesis block,
// the hash of the newest applied block, and the height. Gossip may deliver
// blocks from competing tips; ingest here is append-only, and ordering
// across tips is resolved by the block store's height index.
type Chain struct {
	genesis Block
	tip     [32]byte
	height  uint64
}

// New builds a chain at height 0 with the deterministic genesis block as
// its tip.
func New() *Chain {
	g := NewGenesisBlock()
	return &Chain{genesis: g, tip: g.Header.Hash()}
}

// Height returns how many blocks have been applied after genesis.
func (c *Chain) Height() uint64 { return c.height }

// Genesis returns the genesis block.
func (c *Chain) Genesis() Block { return c.genesis }

// Tip returns the hash of the newest applied block, or the genesis hash
// before any block has been applied.
func (c *Chain) Tip() [32]byte { return c.tip }

// AddBlock applies b, advancing the tip and height. The block must pass
// ValidateBasic; anything deeper (signatures already checked per-tx there,
// duplicate detection, tip competition) is the caller's concern.
func (c *Chain) AddBlock(b Block) error {
	if err := b.ValidateBasic(); err != nil {
		return err
	}
	c.tip = b.Header.Hash()
	c.height++
	return nil
}
