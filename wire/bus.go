package wire

import (
	"encoding/json"
	"errors"
	"sync"
)

// Event is one inbound delivery from the broadcast primitive. Origin is
// the sender's effective origin as reported by the transport.
type Event struct {
	Origin string
	Data   []byte
}

// Bus abstracts the one-way, unordered, untyped broadcast primitive the
// protocol runs on (cross-document postMessage in the browser). Post
// delivers to the peer context only when targetOrigin is "*" or matches
// the peer's origin; Receive yields everything addressed to this context.
type Bus interface {
	Post(env Envelope, targetOrigin string) error
	Receive() <-chan Event
	Close() error
}

var errBusClosed = errors.New("wire: bus closed")

// PipeBus is an in-process Bus. Pipe returns two cross-connected ends so
// both protocol roles can run inside one process, for tests and for
// same-process wallet embedding.
type PipeBus struct {
	origin string
	peer   *PipeBus

	mu     sync.Mutex
	in     chan Event
	closed bool
}

// Pipe creates a connected pair of buses. originA and originB become the
// origins the two ends report to each other.
func Pipe(originA, originB string) (*PipeBus, *PipeBus) {
	a := &PipeBus{origin: originA, in: make(chan Event, 64)}
	b := &PipeBus{origin: originB, in: make(chan Event, 64)}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *PipeBus) Post(env Envelope, targetOrigin string) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	// The transport itself enforces targetOrigin, same as the browser:
	// a mismatch means the message is never delivered.
	if targetOrigin != "*" && targetOrigin != p.peer.origin {
		return nil
	}

	p.peer.mu.Lock()
	defer p.peer.mu.Unlock()
	if p.peer.closed {
		return errBusClosed
	}

	select {
	case p.peer.in <- Event{Origin: p.origin, Data: data}:
	default:
		// Receiver is not draining; drop rather than block the sender.
	}
	return nil
}

func (p *PipeBus) Receive() <-chan Event { return p.in }

func (p *PipeBus) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.in)
	return nil
}
