package blockchain

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	vcrypto "github.com/veltarosnet/veltaros/internal/crypto"
)

// SignedTx is a transfer signed by its sender: amount moves from From to To,
// less the fee, which no account receives. Nonce enforces strictly
// increasing ordering per sender (see NonceTracker).
type SignedTx struct {
	TxID      string `json:"txId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Fee       uint64 `json:"fee"`
	Nonce     uint64 `json:"nonce"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// SigningPayload is the canonical byte sequence the sender signs and the
// TxID is derived from: fixed-size fields in a stable order, hex addresses
// decoded to raw bytes first.
func (t SignedTx) SigningPayload() ([]byte, error) {
	from, err := hex.DecodeString(t.From)
	if err != nil {
		return nil, errors.New("invalid from address hex")
	}
	to, err := hex.DecodeString(t.To)
	if err != nil {
		return nil, errors.New("invalid to address hex")
	}

	buf := make([]byte, 0, len(from)+len(to)+24)
	buf = append(buf, from...)
	buf = append(buf, to...)

	tmp8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp8, t.Amount)
	buf = append(buf, tmp8...)
	binary.LittleEndian.PutUint64(tmp8, t.Fee)
	buf = append(buf, tmp8...)
	binary.LittleEndian.PutUint64(tmp8, t.Nonce)
	buf = append(buf, tmp8...)

	return buf, nil
}

// ComputeTxID derives the transaction ID from its signing payload.
func ComputeTxID(t SignedTx) (string, error) {
	payload, err := t.SigningPayload()
	if err != nil {
		return "", err
	}
	h := vcrypto.Sha256(payload)
	return vcrypto.Hex32(h), nil
}

// ValidateBasic checks the transaction's shape, independent of its signature.
func (t SignedTx) ValidateBasic() error {
	if t.From == "" || t.To == "" {
		return errors.New("from/to required")
	}
	if t.Amount == 0 {
		return errors.New("amount must be > 0")
	}
	if t.Fee > t.Amount {
		return errors.New("fee must be <= amount")
	}
	if err := ValidateAddress(t.From); err != nil {
		return err
	}
	if err := ValidateAddress(t.To); err != nil {
		return err
	}
	return nil
}

// ValidateSignedTx checks shape, signature, and that TxID matches the
// signing payload.
func ValidateSignedTx(t SignedTx) error {
	if err := t.ValidateBasic(); err != nil {
		return err
	}

	pub, err := hex.DecodeString(t.PublicKey)
	if err != nil {
		return errors.New("invalid public key hex")
	}
	sig, err := hex.DecodeString(t.Signature)
	if err != nil {
		return errors.New("invalid signature hex")
	}

	payload, err := t.SigningPayload()
	if err != nil {
		return err
	}
	if !vcrypto.VerifyEd25519(pub, payload, sig) {
		return errors.New("invalid transaction signature")
	}

	wantID, err := ComputeTxID(t)
	if err != nil {
		return err
	}
	if t.TxID != wantID {
		return errors.New("transaction id mismatch")
	}

	return nil
}
