package wire

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/getkayan/walletkit/logger"
)

// Handler serves one RPC method on the responder side. The returned value
// is JSON-encoded into the response envelope; a returned error crosses
// the wire as an error envelope carrying only its message.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Responder is the child-side endpoint: it answers the handshake, narrows
// the allowed origin to the observed peer, dispatches registered methods,
// and queues requests that arrive before their handler is registered.
//
// The pending queue is per-instance state, so multiple responders in one
// process cannot bleed requests into each other.
type Responder struct {
	bus Bus
	log *zap.Logger

	mu            sync.Mutex
	allowedOrigin string
	complete      bool
	methods       map[string]Handler
	queue         []Envelope

	quit chan struct{}
	once sync.Once
}

// NewResponder creates the child endpoint and begins listening. The
// allowed origin starts at allowedOrigin (usually "*") and is narrowed to
// the actual peer origin on the first handshake.
func NewResponder(bus Bus, allowedOrigin string) *Responder {
	r := &Responder{
		bus:           bus,
		log:           logger.Log.Named("wire.responder"),
		allowedOrigin: allowedOrigin,
		methods:       make(map[string]Handler),
		quit:          make(chan struct{}),
	}

	go r.receiveLoop()
	return r
}

// AddMethod registers a handler for an RPC method name. Registration is
// idempotent; the last writer wins. Requests that arrived before
// registration stay queued until ProcessPending runs.
func (r *Responder) AddMethod(name string, h Handler) {
	r.mu.Lock()
	r.methods[name] = h
	r.mu.Unlock()
}

// HandshakeComplete reports whether this endpoint has answered a
// handshake.
func (r *Responder) HandshakeComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// ProcessPending drains the queued inbound requests in arrival order,
// dispatching each as if freshly received. Requests whose method is still
// unregistered are kept, in order, for a later drain. Safe to call with
// an empty queue and concurrently with new arrivals.
func (r *Responder) ProcessPending() {
	var leftover []Envelope

	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.queue = append(leftover, r.queue...)
			r.mu.Unlock()
			return
		}
		env := r.queue[0]
		r.queue = r.queue[1:]
		h, ok := r.methods[env.Method]
		r.mu.Unlock()

		if !ok {
			leftover = append(leftover, env)
			continue
		}
		r.dispatch(env, h)
	}
}

// PendingRequests returns a snapshot copy of the queued requests. If the
// queue is momentarily empty it polls until wait elapses or ctx is done,
// tolerating the startup race where the caller asks before the first
// request has landed.
func (r *Responder) PendingRequests(ctx context.Context, wait time.Duration) []Envelope {
	deadline := time.Now().Add(wait)
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			snapshot := make([]Envelope, len(r.queue))
			copy(snapshot, r.queue)
			r.mu.Unlock()
			return snapshot
		}
		r.mu.Unlock()

		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Close stops the receive loop.
func (r *Responder) Close() {
	r.once.Do(func() { close(r.quit) })
}

func (r *Responder) receiveLoop() {
	events := r.bus.Receive()
	for {
		select {
		case <-r.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ev)
		}
	}
}

func (r *Responder) handle(ev Event) {
	env, ok := decodeEnvelope(ev.Data)
	if !ok {
		return
	}

	r.mu.Lock()
	if r.allowedOrigin != "*" && ev.Origin != r.allowedOrigin {
		r.mu.Unlock()
		return
	}

	if env.Type == TypeHandshake {
		// Narrow from "*" to the actual peer exactly once; later
		// handshakes are still answered without resetting state.
		if !r.complete {
			r.allowedOrigin = ev.Origin
			r.complete = true
		}
		target := r.allowedOrigin
		r.mu.Unlock()

		reply := Envelope{Channel: Channel, ID: env.ID, Type: TypeHandshakeResponse}
		if err := r.bus.Post(reply, target); err != nil {
			r.log.Debug("handshake reply failed", zap.Error(err))
		}
		return
	}

	if !r.complete {
		// Only a handshake may open the channel.
		r.mu.Unlock()
		return
	}

	if env.Type != TypeMessage || env.Method == "" {
		r.mu.Unlock()
		return
	}

	h, registered := r.methods[env.Method]
	if !registered {
		r.queue = append(r.queue, env)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.dispatch(env, h)
}

func (r *Responder) dispatch(env Envelope, h Handler) {
	result, err := h(context.Background(), env.Params)

	r.mu.Lock()
	target := r.allowedOrigin
	r.mu.Unlock()

	if err != nil {
		r.reply(Envelope{Channel: Channel, ID: env.ID, Type: TypeError}, errorBody{Message: err.Error()}, target)
		return
	}
	r.reply(Envelope{Channel: Channel, ID: env.ID, Type: TypeMessageResponse}, result, target)
}

func (r *Responder) reply(env Envelope, payload any, target string) {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.log.Warn("encode reply failed", zap.String("method", env.Method), zap.Error(err))
			env.Type = TypeError
			data, _ = json.Marshal(errorBody{Message: "failed to encode response"})
			env.Data = data
		} else {
			env.Data = data
		}
	}
	if err := r.bus.Post(env, target); err != nil {
		r.log.Debug("reply post failed", zap.Error(err))
	}
}
