package collaborators

import (
	"encoding/json"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DappRoute is a single registered dapp endpoint a peer message or request
// can be dispatched to.
type DappRoute struct {
	Method string
	Path   string
}

// Dapps dispatches inbound dapp messages/requests to locally registered
// dapps, keyed by dappID. It implements transport.DappHandler.
type Dapps struct {
	log *logrus.Entry

	mu       sync.Mutex
	messages map[string]int
	routes   map[string]map[DappRoute]func(query map[string]string) (json.RawMessage, error)
}

// NewDapps builds an empty dapp registry.
func NewDapps(log *logrus.Entry) *Dapps {
	return &Dapps{
		log:      log,
		messages: make(map[string]int),
		routes:   make(map[string]map[DappRoute]func(query map[string]string) (json.RawMessage, error)),
	}
}

// Register binds a handler for method+path under a dappID. It takes the same
// lock as Request, so routes may be added while traffic flows.
func (d *Dapps) Register(dappID, method, path string, handler func(query map[string]string) (json.RawMessage, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.routes[dappID] == nil {
		d.routes[dappID] = make(map[DappRoute]func(query map[string]string) (json.RawMessage, error))
	}
	d.routes[dappID][DappRoute{Method: method, Path: path}] = handler
}

// Message records an inbound broadcast message for dappID. Real payload
// handling belongs to the dapp itself; this just counts and logs.
func (d *Dapps) Message(dappID string, body json.RawMessage) error {
	d.mu.Lock()
	d.messages[dappID]++
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{"dappId": dappID, "bytes": len(body)}).Debug("collaborators: dapp message received")
	return nil
}

// Request dispatches a peer-to-peer dapp RPC call to a registered route.
func (d *Dapps) Request(dappID, method, path string, query map[string]string) (json.RawMessage, error) {
	clean, err := url.PathUnescape(path)
	if err != nil {
		clean = path
	}

	d.mu.Lock()
	handler, ok := d.routes[dappID][DappRoute{Method: method, Path: clean}]
	d.mu.Unlock()

	if !ok {
		return nil, errors.Errorf("collaborators: no route %s %s registered for dapp %s", method, clean, dappID)
	}
	return handler(query)
}
