package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veltarosnet/veltaros/internal/peers"
)

// fakeDirectory implements PeerDirectory for inbound-handler tests.
type fakeDirectory struct {
	mu       sync.Mutex
	removed  []peers.PeerKey
	banned   []peers.PeerKey
	banSecs  int
	updates  []peers.Peer
	listPeer []peers.Peer
	dapps    map[peers.PeerKey][]string
}

func (f *fakeDirectory) List(limit int, dappID string) ([]peers.Peer, error) {
	return f.listPeer, nil
}

func (f *fakeDirectory) GetByFilter(filt peers.Filter) ([]peers.Peer, error) {
	return f.listPeer, nil
}

func (f *fakeDirectory) Update(p peers.Peer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, p)
}

func (f *fakeDirectory) SetState(ip string, port int, state peers.State, timeoutSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state == peers.StateBanned {
		f.banned = append(f.banned, peers.PeerKey{IP: ip, Port: port})
		f.banSecs = timeoutSeconds
	}
	return nil
}

func (f *fakeDirectory) Remove(ip string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, peers.PeerKey{IP: ip, Port: port})
	return nil
}

func (f *fakeDirectory) AddDapp(ip string, port int, dappID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dapps == nil {
		f.dapps = make(map[peers.PeerKey][]string)
	}
	key := peers.PeerKey{IP: ip, Port: port}
	f.dapps[key] = append(f.dapps[key], dappID)
}

type fakeSchema struct{ rejectHeader bool }

func (s *fakeSchema) ValidateHeader(data any) error {
	if s.rejectHeader {
		return assert.AnError
	}
	return nil
}
func (s *fakeSchema) ValidatePeerList(data any) error    { return nil }
func (s *fakeSchema) ValidateDappMessage(data any) error { return nil }

type fakeBlocks struct {
	normalizeErr error
}

func (b *fakeBlocks) ObjectNormalize(raw json.RawMessage) (json.RawMessage, string, error) {
	if b.normalizeErr != nil {
		return nil, "", b.normalizeErr
	}
	return raw, "block-1", nil
}
func (b *fakeBlocks) Height() (int, error)                                    { return 10, nil }
func (b *fakeBlocks) LoadBlocksAfter(string, int) ([]json.RawMessage, error)   { return nil, nil }
func (b *fakeBlocks) CommonBlock(ids []string) (json.RawMessage, error)        { return json.RawMessage(`{}`), nil }

type fakeDapps struct {
	calls int
	mu    sync.Mutex
}

func (d *fakeDapps) Message(dappID string, body json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return nil
}
func (d *fakeDapps) Request(dappID, method, path string, query map[string]string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

func newTestTransport(dir *fakeDirectory, schema SchemaValidator, blocks BlockProcessor, dapps DappHandler) *Transport {
	return New(Config{
		Nethash:        "Y",
		CurrentVersion: "1.0.0",
		MinVersion:     "0.5.0",
		OS:             "linux",
		Port:           8000,
		Directory:      dir,
		Schema:         schema,
		Blocks:         blocks,
		Dapps:          dapps,
		Log:            discardLogger(),
	})
}

func TestInboundNethashMismatchRemovesPeer(t *testing.T) {
	dir := &fakeDirectory{}
	tr := newTestTransport(dir, &fakeSchema{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/peer/list", nil)
	req.Header.Set("nethash", "X")
	req.Header.Set("version", "1.0.0")
	req.Header.Set("os", "linux")
	req.Header.Set("port", "8000")
	req.RemoteAddr = "3.3.3.3:1234"

	w := httptest.NewRecorder()
	tr.Router().ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Y", body["expected"])
	assert.Equal(t, "X", body["received"])
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, dir.removed, 1)
	assert.Equal(t, "3.3.3.3", dir.removed[0].IP)
}

func TestInboundBlocksPostBanOnNormalizeFailure(t *testing.T) {
	dir := &fakeDirectory{}
	blocks := &fakeBlocks{normalizeErr: assert.AnError}
	tr := newTestTransport(dir, &fakeSchema{}, blocks, nil)

	req := httptest.NewRequest(http.MethodPost, "/peer/blocks", bytes.NewBufferString(`{"bad":"block"}`))
	req.Header.Set("nethash", "Y")
	req.Header.Set("version", "1.0.0")
	req.Header.Set("os", "linux")
	req.Header.Set("port", "8000")
	req.RemoteAddr = "4.4.4.4:1234"

	w := httptest.NewRecorder()
	tr.Router().ServeHTTP(w, req)

	require.Len(t, dir.banned, 1)
	assert.Equal(t, "4.4.4.4", dir.banned[0].IP)
	assert.Equal(t, blockBanSeconds, dir.banSecs)
	assert.Equal(t, 3600, dir.banSecs)
}

// fakeTxs implements TransactionProcessor for transaction-route tests.
type fakeTxs struct {
	mu       sync.Mutex
	received []json.RawMessage
}

func (f *fakeTxs) ObjectNormalize(raw json.RawMessage) (json.RawMessage, string, error) {
	return raw, "tx-1", nil
}

func (f *fakeTxs) ReceiveTransactions(txs []json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, txs...)
	return nil
}

func (f *fakeTxs) UnconfirmedList() []json.RawMessage          { return nil }
func (f *fakeTxs) Signatures() []json.RawMessage               { return nil }
func (f *fakeTxs) ProcessSignature(raw json.RawMessage) error  { return nil }

// fakeBus records emitted events for wiring assertions.
type fakeBus struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBus) Emit(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func TestInboundTransactionsPostAppliesThroughBalancesSequence(t *testing.T) {
	dir := &fakeDirectory{}
	txs := &fakeTxs{}
	eventBus := &fakeBus{}
	tr := newTestTransport(dir, &fakeSchema{}, nil, nil)
	tr.txs = txs
	tr.bus = eventBus

	req := httptest.NewRequest(http.MethodPost, "/peer/transactions", bytes.NewBufferString(`{"txId":"tx-1"}`))
	req.Header.Set("nethash", "Y")
	req.Header.Set("version", "1.0.0")
	req.Header.Set("os", "linux")
	req.Header.Set("port", "8000")
	req.RemoteAddr = "7.7.7.7:1234"

	w := httptest.NewRecorder()
	tr.Router().ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tx-1", body["transactionId"])

	require.Len(t, txs.received, 1)
	assert.Contains(t, eventBus.events, "unconfirmedTransaction")
}

func TestInboundDappMessageAttachesDappAssociation(t *testing.T) {
	dir := &fakeDirectory{}
	dapps := &fakeDapps{}
	tr := newTestTransport(dir, &fakeSchema{}, nil, dapps)

	bodyForHash := map[string]any{"dappid": "dapp-9", "timestamp": int64(2000), "value": 7}
	hash, err := HashSum(bodyForHash, 2000)
	require.NoError(t, err)

	full := map[string]any{"dappid": "dapp-9", "timestamp": 2000, "value": 7, "hash": hash}
	raw, err := json.Marshal(full)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/peer/dapp/message", bytes.NewReader(raw))
	req.Header.Set("nethash", "Y")
	req.Header.Set("version", "1.0.0")
	req.Header.Set("os", "linux")
	req.Header.Set("port", "8000")
	req.RemoteAddr = "8.8.8.8:1234"

	w := httptest.NewRecorder()
	tr.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	key := peers.PeerKey{IP: "8.8.8.8", Port: 8000}
	assert.Equal(t, []string{"dapp-9"}, dir.dapps[key])
}

func TestInboundDappMessageDedup(t *testing.T) {
	dir := &fakeDirectory{}
	dapps := &fakeDapps{}
	tr := newTestTransport(dir, &fakeSchema{}, nil, dapps)

	bodyForHash := map[string]any{"dappid": "dapp-1", "timestamp": int64(1000), "value": 1}
	hash, err := HashSum(bodyForHash, 1000)
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		full := map[string]any{"dappid": "dapp-1", "timestamp": 1000, "value": 1, "hash": hash}
		raw, err := json.Marshal(full)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/peer/dapp/message", bytes.NewReader(raw))
		req.Header.Set("nethash", "Y")
		req.Header.Set("version", "1.0.0")
		req.Header.Set("os", "linux")
		req.Header.Set("port", "8000")
		req.RemoteAddr = "5.5.5.5:1234"

		w := httptest.NewRecorder()
		tr.Router().ServeHTTP(w, req)
		return w
	}

	firstResp := send()
	secondResp := send()

	assert.Equal(t, 1, dapps.calls)
	assert.Equal(t, http.StatusOK, firstResp.Code)
	assert.Equal(t, http.StatusOK, secondResp.Code)
}

func TestInboundDappMessageRejectsHashMismatch(t *testing.T) {
	dir := &fakeDirectory{}
	dapps := &fakeDapps{}
	tr := newTestTransport(dir, &fakeSchema{}, nil, dapps)

	full := map[string]any{"dappid": "dapp-1", "timestamp": 1000, "value": 1, "hash": "not-the-real-hash"}
	raw, err := json.Marshal(full)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/peer/dapp/message", bytes.NewReader(raw))
	req.Header.Set("nethash", "Y")
	req.Header.Set("version", "1.0.0")
	req.Header.Set("os", "linux")
	req.Header.Set("port", "8000")
	req.RemoteAddr = "6.6.6.6:1234"

	w := httptest.NewRecorder()
	tr.Router().ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "hash mismatch", body["error"])
	assert.Equal(t, 0, dapps.calls)
}

func TestUnmatchedRouteReturns500(t *testing.T) {
	dir := &fakeDirectory{}
	tr := newTestTransport(dir, &fakeSchema{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/peer/does-not-exist", nil)
	req.Header.Set("nethash", "Y")
	req.Header.Set("version", "1.0.0")
	req.Header.Set("os", "linux")
	req.Header.Set("port", "8000")

	w := httptest.NewRecorder()
	tr.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
