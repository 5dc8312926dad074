package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veltarosnet/veltaros/internal/peers"
)

// PeerDirectory is the narrow capability Transport needs from the peer
// directory. internal/peers never imports this package; the concrete
// *peers.Directory satisfies this interface structurally.
type PeerDirectory interface {
	List(limit int, dappID string) ([]peers.Peer, error)
	GetByFilter(f peers.Filter) ([]peers.Peer, error)
	Update(p peers.Peer)
	SetState(ip string, port int, state peers.State, timeoutSeconds int) error
	Remove(ip string, port int) error
	AddDapp(ip string, port int, dappID string)
}

// SchemaValidator is the narrow capability Transport needs from the schema
// collaborator.
type SchemaValidator interface {
	ValidateHeader(data any) error
	ValidatePeerList(data any) error
	ValidateDappMessage(data any) error
}

// Bus is the synchronous domain-event fan-out collaborator.
type Bus interface {
	Emit(event string, payload any)
}

// BlockProcessor is the opaque `blocks`/`logic.block` collaborator.
type BlockProcessor interface {
	ObjectNormalize(raw json.RawMessage) (normalized json.RawMessage, blockID string, err error)
	Height() (int, error)
	LoadBlocksAfter(lastBlockID string, limit int) ([]json.RawMessage, error)
	CommonBlock(ids []string) (json.RawMessage, error)
}

// TransactionProcessor is the opaque `transactions`/`multisignatures`/
// `logic.transaction` collaborator.
type TransactionProcessor interface {
	ObjectNormalize(raw json.RawMessage) (normalized json.RawMessage, txID string, err error)
	ReceiveTransactions(txs []json.RawMessage) error
	UnconfirmedList() []json.RawMessage
	Signatures() []json.RawMessage
	ProcessSignature(raw json.RawMessage) error
}

// DappHandler is the opaque `dapps` collaborator.
type DappHandler interface {
	Message(dappID string, body json.RawMessage) error
	Request(dappID, method, path string, query map[string]string) (json.RawMessage, error)
}

// DelegateSignaler is the opaque `delegates` collaborator.
type DelegateSignaler interface {
	EnableForging()
}

// SystemInfo is the opaque `system` collaborator.
type SystemInfo interface {
	Height() (int, error)
	Version() (version, build string)
}

// Config configures a Transport.
type Config struct {
	Nethash        string
	CurrentVersion string
	MinVersion     string
	OS             string
	Port           int
	Timeout        time.Duration
	MaxUpdatePeers int

	Directory  PeerDirectory
	Schema     SchemaValidator
	Bus        Bus
	Blocks     BlockProcessor
	Txs        TransactionProcessor
	Dapps      DappHandler
	Delegates  DelegateSignaler
	System     SystemInfo
	Log        *logrus.Entry
}

// Transport implements the inbound /peer HTTP API, the outbound peer RPC
// client, and the management /api/peers API.
type Transport struct {
	log     *logrus.Entry
	headers Headers
	nethash string
	current string
	minVer  string
	timeout time.Duration
	maxUpd  int

	dir      PeerDirectory
	schema   SchemaValidator
	bus      Bus
	room     *Room
	dedup    *MessageDedup
	balances *peers.Sequence

	blocks    BlockProcessor
	txs       TransactionProcessor
	dapps     DappHandler
	delegates DelegateSignaler
	system    SystemInfo

	client *http.Client

	mu            sync.RWMutex
	loaded        bool
	receivedBlock bool
}

// New builds a Transport. OutboundHeaders are assigned once here, matching
// the "assigned once in onBind" lifecycle.
func New(cfg Config) *Transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxUpd := cfg.MaxUpdatePeers
	if maxUpd <= 0 {
		maxUpd = 20
	}

	t := &Transport{
		log:      cfg.Log,
		nethash:  cfg.Nethash,
		current:  cfg.CurrentVersion,
		minVer:   cfg.MinVersion,
		timeout:  timeout,
		maxUpd:   maxUpd,
		dir:      cfg.Directory,
		schema:   cfg.Schema,
		bus:      cfg.Bus,
		room:     NewRoom(cfg.Log),
		dedup:    NewMessageDedup(4096, 10*time.Minute),
		balances: peers.NewSequence(0),

		blocks:    cfg.Blocks,
		txs:       cfg.Txs,
		dapps:     cfg.Dapps,
		delegates: cfg.Delegates,
		system:    cfg.System,

		client: &http.Client{Timeout: timeout},
		loaded: true,
	}

	t.headers = Headers{
		OS:      cfg.OS,
		Version: cfg.CurrentVersion,
		Port:    cfg.Port,
		Nethash: cfg.Nethash,
	}

	return t
}

// Close drains and stops the balances write sequence.
func (t *Transport) Close() {
	t.balances.Close()
}

// SetLoaded toggles the loaded flag; while false, inbound framing and new
// outbound activity short-circuit with "Blockchain is loading".
func (t *Transport) SetLoaded(loaded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded = loaded
}

func (t *Transport) isLoaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

func (t *Transport) markBlockReceived() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivedBlock = true
}

func (t *Transport) hasReceivedBlock() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.receivedBlock
}

func writeJSON(w http.ResponseWriter, t *Transport, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	for k, v := range t.headers.AsMap() {
		w.Header().Set("x-"+k, toHeaderString(v))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func toHeaderString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	default:
		raw, _ := json.Marshal(x)
		return string(raw)
	}
}
