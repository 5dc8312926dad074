package collaborators

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/veltarosnet/veltaros/internal/blockchain"
	"github.com/veltarosnet/veltaros/internal/ledger"
)

// Signature is a multisignature vote on a pending transaction.
type Signature struct {
	TxID      string `json:"txId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// Transactions adapts a nonce-ordered mempool plus the confirmed ledger
// into transport.TransactionProcessor.
type Transactions struct {
	log        *logrus.Entry
	nonces     *blockchain.NonceTracker
	nonceStore *blockchain.NonceStore
	ledger     *ledger.Balances

	mu          sync.Mutex
	unconfirmed map[string]blockchain.SignedTx
	signatures  map[string][]Signature
}

// NewTransactions builds a Transactions collaborator over a fresh mempool,
// restoring any nonces already persisted at nonceStorePath.
func NewTransactions(log *logrus.Entry, bal *ledger.Balances, nonceStorePath string) *Transactions {
	nonces := blockchain.NewNonceTracker()
	store := blockchain.NewNonceStore(nonceStorePath)

	if snaps, err := store.Load(); err != nil {
		log.WithError(err).Warn("collaborators: load nonce store failed")
	} else {
		nonces.Restore(snaps)
	}

	return &Transactions{
		log:         log,
		nonces:      nonces,
		nonceStore:  store,
		ledger:      bal,
		unconfirmed: make(map[string]blockchain.SignedTx),
		signatures:  make(map[string][]Signature),
	}
}

// PersistNonces flushes the current nonce high-water marks to disk. Call
// periodically and on shutdown.
func (t *Transactions) PersistNonces() error {
	if err := t.nonceStore.Save(t.nonces.Snapshot()); err != nil {
		return errors.Wrap(err, "collaborators: save nonce store")
	}
	return nil
}

// ObjectNormalize decodes and validates an inbound transaction body,
// enforcing strictly-increasing nonces per sender.
func (t *Transactions) ObjectNormalize(raw json.RawMessage) (json.RawMessage, string, error) {
	var tx blockchain.SignedTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, "", errors.Wrap(err, "collaborators: decode transaction")
	}

	if err := blockchain.ValidateSignedTx(tx); err != nil {
		return nil, "", errors.Wrap(err, "collaborators: invalid transaction")
	}

	if !t.nonces.CheckAndUpdate(tx.From, tx.Nonce) {
		return nil, "", errors.Errorf("collaborators: nonce %d is not greater than last seen for %s", tx.Nonce, tx.From)
	}

	normalized, err := json.Marshal(tx)
	if err != nil {
		return nil, "", err
	}
	return normalized, tx.TxID, nil
}

// ReceiveTransactions stages already-normalized transactions into the
// unconfirmed pool. Enqueued on the balances write sequence by the caller.
func (t *Transactions) ReceiveTransactions(raws []json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, raw := range raws {
		var tx blockchain.SignedTx
		if err := json.Unmarshal(raw, &tx); err != nil {
			return errors.Wrap(err, "collaborators: decode unconfirmed transaction")
		}
		t.unconfirmed[tx.TxID] = tx
	}
	return nil
}

// ApplyConfirmed removes txID from the unconfirmed pool and applies it to
// the ledger.
func (t *Transactions) ApplyConfirmed(txID string) error {
	t.mu.Lock()
	tx, ok := t.unconfirmed[txID]
	if ok {
		delete(t.unconfirmed, txID)
	}
	t.mu.Unlock()

	if !ok {
		return errors.Errorf("collaborators: unknown transaction %s", txID)
	}
	if err := t.ledger.ApplyConfirmedTx(tx.From, tx.To, tx.Amount, tx.Fee); err != nil {
		return errors.Wrap(err, "collaborators: apply confirmed transaction")
	}
	t.ledger.AdvanceHeight()
	return nil
}

// UnconfirmedList returns the pending transactions as raw JSON.
func (t *Transactions) UnconfirmedList() []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]json.RawMessage, 0, len(t.unconfirmed))
	for _, tx := range t.unconfirmed {
		raw, err := json.Marshal(tx)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// Signatures returns every collected signature across unconfirmed
// transactions as raw JSON.
func (t *Transactions) Signatures() []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]json.RawMessage, 0)
	for _, sigs := range t.signatures {
		for _, s := range sigs {
			raw, err := json.Marshal(s)
			if err != nil {
				continue
			}
			out = append(out, raw)
		}
	}
	return out
}

// ProcessSignature records a multisignature vote against its transaction,
// if that transaction is still unconfirmed.
func (t *Transactions) ProcessSignature(raw json.RawMessage) error {
	var sig Signature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return errors.Wrap(err, "collaborators: decode signature")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.unconfirmed[sig.TxID]; !ok {
		return errors.Errorf("collaborators: unknown transaction %s", sig.TxID)
	}
	t.signatures[sig.TxID] = append(t.signatures[sig.TxID], sig)
	return nil
}
