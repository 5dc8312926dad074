package collaborators

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veltarosnet/veltaros/internal/blockchain"
	vcrypto "github.com/veltarosnet/veltaros/internal/crypto"
	"github.com/veltarosnet/veltaros/internal/ledger"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

func newTransactionsForTest(t *testing.T, bal *ledger.Balances) *Transactions {
	t.Helper()
	return NewTransactions(testLog(), bal, filepath.Join(t.TempDir(), "nonces.json"))
}

func signedTx(t *testing.T, fromPub, fromPriv, toAddr string, amount, fee, nonce uint64) blockchain.SignedTx {
	t.Helper()

	fromAddr, err := blockchain.AddressFromEd25519PublicKeyHex(fromPub)
	require.NoError(t, err)

	tx := blockchain.SignedTx{
		From:      fromAddr,
		To:        toAddr,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
		PublicKey: fromPub,
	}

	payload, err := tx.SigningPayload()
	require.NoError(t, err)

	priv, err := hex.DecodeString(fromPriv)
	require.NoError(t, err)
	sig, err := vcrypto.SignEd25519(priv, payload)
	require.NoError(t, err)
	tx.Signature = hex.EncodeToString(sig)

	txID, err := blockchain.ComputeTxID(tx)
	require.NoError(t, err)
	tx.TxID = txID

	return tx
}

func newKeypair(t *testing.T) (pubHex, privHex string) {
	t.Helper()
	pub, priv, err := vcrypto.GenerateEd25519Keypair()
	require.NoError(t, err)
	return hex.EncodeToString(pub), hex.EncodeToString(priv)
}

func TestTransactionsObjectNormalizeRejectsReplayedNonce(t *testing.T) {
	fromPub, fromPriv := newKeypair(t)
	toPub, _ := newKeypair(t)
	toAddr, err := blockchain.AddressFromEd25519PublicKeyHex(toPub)
	require.NoError(t, err)

	txs := newTransactionsForTest(t, ledger.New())

	tx1 := signedTx(t, fromPub, fromPriv, toAddr, 100, 1, 1)
	raw1, err := json.Marshal(tx1)
	require.NoError(t, err)

	_, txID, err := txs.ObjectNormalize(raw1)
	require.NoError(t, err)
	assert.Equal(t, tx1.TxID, txID)

	// Replaying the same nonce must be rejected.
	_, _, err = txs.ObjectNormalize(raw1)
	assert.Error(t, err)

	tx2 := signedTx(t, fromPub, fromPriv, toAddr, 50, 1, 2)
	raw2, err := json.Marshal(tx2)
	require.NoError(t, err)

	_, txID2, err := txs.ObjectNormalize(raw2)
	require.NoError(t, err)
	assert.Equal(t, tx2.TxID, txID2)
}

func TestTransactionsApplyConfirmedUpdatesLedger(t *testing.T) {
	fromPub, fromPriv := newKeypair(t)
	toPub, _ := newKeypair(t)
	toAddr, err := blockchain.AddressFromEd25519PublicKeyHex(toPub)
	require.NoError(t, err)

	bal := ledger.New()
	fromAddr, err := blockchain.AddressFromEd25519PublicKeyHex(fromPub)
	require.NoError(t, err)
	bal.Credit(fromAddr, 1000)

	txs := newTransactionsForTest(t, bal)

	tx := signedTx(t, fromPub, fromPriv, toAddr, 100, 10, 1)
	require.NoError(t, txs.ReceiveTransactions([]json.RawMessage{mustMarshal(t, tx)}))

	require.NoError(t, txs.ApplyConfirmed(tx.TxID))

	assert.Equal(t, uint64(900), bal.Get(fromAddr))
	assert.Equal(t, uint64(90), bal.Get(toAddr))
	assert.Equal(t, uint64(1), bal.Height())

	assert.Empty(t, txs.UnconfirmedList())
}

func TestTransactionsApplyConfirmedUnknownTx(t *testing.T) {
	txs := newTransactionsForTest(t, ledger.New())
	err := txs.ApplyConfirmed("does-not-exist")
	assert.Error(t, err)
}

func TestTransactionsProcessSignatureRequiresUnconfirmedTx(t *testing.T) {
	txs := newTransactionsForTest(t, ledger.New())

	sig := Signature{TxID: "missing", PublicKey: "ab", Signature: "cd"}
	err := txs.ProcessSignature(mustMarshal(t, sig))
	assert.Error(t, err)
}

func TestTransactionsProcessSignatureAccumulates(t *testing.T) {
	fromPub, fromPriv := newKeypair(t)
	toPub, _ := newKeypair(t)
	toAddr, err := blockchain.AddressFromEd25519PublicKeyHex(toPub)
	require.NoError(t, err)

	txs := newTransactionsForTest(t, ledger.New())
	tx := signedTx(t, fromPub, fromPriv, toAddr, 100, 1, 1)
	require.NoError(t, txs.ReceiveTransactions([]json.RawMessage{mustMarshal(t, tx)}))

	sig := Signature{TxID: tx.TxID, PublicKey: fromPub, Signature: "ab"}
	require.NoError(t, txs.ProcessSignature(mustMarshal(t, sig)))

	assert.Len(t, txs.Signatures(), 1)
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
