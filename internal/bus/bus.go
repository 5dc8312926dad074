// Package bus is the synchronous event fan-out transport.Transport emits
// peer-facing domain events on (new blocks, unconfirmed transactions,
// signatures, dapp messages) for any local subscriber, such as the node's
// gossip hooks.
package bus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives one emitted event. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(payload any)

// Bus is an in-process, synchronous publish/subscribe fan-out. It
// implements transport.Bus.
type Bus struct {
	log *logrus.Entry

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New builds an empty Bus.
func New(log *logrus.Entry) *Bus {
	return &Bus{log: log, handlers: make(map[string][]Handler)}
}

// On registers handler to run whenever event is emitted.
func (b *Bus) On(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Emit runs every handler registered for event, in registration order, on
// the calling goroutine. A panicking handler is recovered and logged so one
// bad subscriber cannot take down the emitter.
func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event]))
	copy(handlers, b.handlers[event])
	b.mu.RUnlock()

	for _, h := range handlers {
		b.runSafely(event, h, payload)
	}
}

func (b *Bus) runSafely(event string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{"event": event, "panic": r}).Error("bus: handler panicked")
		}
	}()
	h(payload)
}
