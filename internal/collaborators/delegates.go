package collaborators

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Delegates tracks whether this node has joined forging once the network
// catches it up to its own version and nethash. It implements
// transport.DelegateSignaler.
type Delegates struct {
	log     *logrus.Entry
	forging atomic.Bool
}

// NewDelegates builds a Delegates collaborator with forging disabled.
func NewDelegates(log *logrus.Entry) *Delegates {
	return &Delegates{log: log}
}

// EnableForging flips forging on, once, and logs the transition.
func (d *Delegates) EnableForging() {
	if d.forging.CompareAndSwap(false, true) {
		d.log.Info("collaborators: forging enabled")
	}
}

// Forging reports whether forging has been enabled.
func (d *Delegates) Forging() bool {
	return d.forging.Load()
}
