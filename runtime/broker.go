package runtime

import (
	"fmt"
	"log/slog"
	"sync"

	"musink/contract"
	"musink/errors"
)

// WorkerBroker maps a named computation service to its live connection
// and routes payloads to it. At most one connection is held per name:
// a later registration under the same name replaces the earlier one,
// which keeps the routing decision trivial and makes worker restarts
// self-healing.
type WorkerBroker struct {
	mu      sync.RWMutex
	log     *slog.Logger
	workers map[string]contract.FrameSink
}

func NewWorkerBroker(log *slog.Logger) *WorkerBroker {
	return &WorkerBroker{log: log, workers: make(map[string]contract.FrameSink)}
}

// Register enrols a worker connection under serviceName, replacing any
// prior handle for that name.
func (b *WorkerBroker) Register(serviceName string, sink contract.FrameSink) error {
	if serviceName == "" {
		return fmt.Errorf("%w: empty service name", errors.ErrMalformedMessage)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.workers[serviceName]; ok {
		b.log.Info("replacing worker registration", "service", serviceName)
	}
	b.workers[serviceName] = sink
	return nil
}

// Deregister prunes a worker on disconnect. The sink is compared so that
// a replaced socket closing late cannot prune its replacement.
func (b *WorkerBroker) Deregister(serviceName string, sink contract.FrameSink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if current, ok := b.workers[serviceName]; ok && current == sink {
		delete(b.workers, serviceName)
	}
}

// Route forwards a payload to the worker registered under serviceName.
// Delivery is fire-and-forget: replies arrive asynchronously on the
// worker's own connection, correlated by the token inside the payload.
func (b *WorkerBroker) Route(serviceName string, frame []byte) error {
	b.mu.RLock()
	sink, ok := b.workers[serviceName]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrNotRegistered, serviceName)
	}
	return sink.Send(frame)
}

// Registered reports whether a worker currently serves serviceName.
func (b *WorkerBroker) Registered(serviceName string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.workers[serviceName]
	return ok
}
