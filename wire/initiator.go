package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/getkayan/walletkit/logger"
	"github.com/getkayan/walletkit/telemetry"
)

const (
	defaultHandshakeInterval = 500 * time.Millisecond
	defaultHandshakeTimeout  = 5 * time.Minute
)

// ErrHandshakeTimeout is returned by Call when the peer never completes
// the handshake within the configured bound. The request is never sent.
var ErrHandshakeTimeout = errors.New("wire: handshake timed out")

// ErrCallTimeout is returned when a per-call timeout is configured and the
// peer does not answer in time.
var ErrCallTimeout = errors.New("wire: call timed out")

// RPCError is the local reconstruction of a peer handler failure. Only the
// message survives the wire; the original error type does not.
type RPCError struct {
	Message string
}

func (e *RPCError) Error() string { return "wire: remote error: " + e.Message }

// InitiatorConfig tunes an Initiator. Zero values select the protocol
// defaults (500ms handshake interval, 5 minute handshake wait, no
// per-call timeout).
type InitiatorConfig struct {
	HandshakeInterval time.Duration
	HandshakeTimeout  time.Duration

	// CallTimeout bounds each call after the handshake is complete.
	// Zero leaves calls pending until the peer answers, matching the
	// historical contract.
	CallTimeout time.Duration
}

func (c *InitiatorConfig) withDefaults() {
	if c.HandshakeInterval <= 0 {
		c.HandshakeInterval = defaultHandshakeInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
}

type callResult struct {
	data json.RawMessage
	err  error
}

// Initiator is the parent-side endpoint: it drives the handshake and
// issues correlated RPC calls to the embedded peer.
type Initiator struct {
	bus           Bus
	allowedOrigin string
	cfg           InitiatorConfig
	log           *zap.Logger

	mu      sync.Mutex
	pending map[string]chan callResult

	hsDone chan struct{}
	hsOnce sync.Once
	quit   chan struct{}
	once   sync.Once
}

// NewInitiator creates the parent endpoint and immediately begins the
// handshake loop against the peer. allowedOrigin scopes both outbound
// targetOrigin and inbound origin verification; "*" disables the origin
// check (inbound) and broadcasts (outbound).
func NewInitiator(bus Bus, allowedOrigin string) *Initiator {
	return NewInitiatorWithConfig(bus, allowedOrigin, InitiatorConfig{})
}

func NewInitiatorWithConfig(bus Bus, allowedOrigin string, cfg InitiatorConfig) *Initiator {
	cfg.withDefaults()
	i := &Initiator{
		bus:           bus,
		allowedOrigin: allowedOrigin,
		cfg:           cfg,
		log:           logger.Log.Named("wire.initiator"),
		pending:       make(map[string]chan callResult),
		hsDone:        make(chan struct{}),
		quit:          make(chan struct{}),
	}

	go i.receiveLoop()
	go i.handshakeLoop()

	return i
}

// HandshakeComplete reports whether the peer has answered the handshake.
// The transition is one-way for the life of the endpoint.
func (i *Initiator) HandshakeComplete() bool {
	select {
	case <-i.hsDone:
		return true
	default:
		return false
	}
}

// Call issues an RPC to the peer and waits for the matching response.
// It first waits for handshake completion (bounded by HandshakeTimeout);
// on timeout the request is never posted. Concurrent calls are
// independent: each gets its own correlation id and may settle in any
// order.
func (i *Initiator) Call(ctx context.Context, method string, params any) (data json.RawMessage, err error) {
	ctx, span := telemetry.SpanRPC(ctx, method)
	defer func() { telemetry.EndSpan(span, err) }()

	hsTimer := time.NewTimer(i.cfg.HandshakeTimeout)
	defer hsTimer.Stop()

	select {
	case <-i.hsDone:
	case <-hsTimer.C:
		return nil, ErrHandshakeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-i.quit:
		return nil, errBusClosed
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("wire: encode params: %w", err)
		}
		raw = data
	}

	id := uuid.NewString()
	ch := make(chan callResult, 1)

	i.mu.Lock()
	i.pending[id] = ch
	i.mu.Unlock()

	env := Envelope{
		Channel: Channel,
		ID:      id,
		Type:    TypeMessage,
		Method:  method,
		Params:  raw,
	}
	if err := i.bus.Post(env, i.allowedOrigin); err != nil {
		i.removePending(id)
		return nil, fmt.Errorf("wire: post %s: %w", method, err)
	}

	var timeout <-chan time.Time
	if i.cfg.CallTimeout > 0 {
		t := time.NewTimer(i.cfg.CallTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-ch:
		return res.data, res.err
	case <-timeout:
		i.removePending(id)
		return nil, ErrCallTimeout
	case <-ctx.Done():
		i.removePending(id)
		return nil, ctx.Err()
	}
}

// Close stops the handshake and receive loops. In-flight calls fail once
// their context or timeout fires; the bus itself is owned by the caller.
func (i *Initiator) Close() {
	i.once.Do(func() { close(i.quit) })
}

func (i *Initiator) handshakeLoop() {
	ticker := time.NewTicker(i.cfg.HandshakeInterval)
	defer ticker.Stop()

	i.postHandshake()
	for {
		select {
		case <-i.hsDone:
			return
		case <-i.quit:
			return
		case <-ticker.C:
			i.postHandshake()
		}
	}
}

func (i *Initiator) postHandshake() {
	env := Envelope{Channel: Channel, ID: uuid.NewString(), Type: TypeHandshake}
	if err := i.bus.Post(env, i.allowedOrigin); err != nil {
		i.log.Debug("handshake post failed", zap.Error(err))
	}
}

func (i *Initiator) receiveLoop() {
	events := i.bus.Receive()
	for {
		select {
		case <-i.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			i.handle(ev)
		}
	}
}

func (i *Initiator) handle(ev Event) {
	env, ok := decodeEnvelope(ev.Data)
	if !ok {
		return
	}
	if i.allowedOrigin != "*" && ev.Origin != i.allowedOrigin {
		return
	}

	switch env.Type {
	case TypeHandshakeResponse:
		i.hsOnce.Do(func() { close(i.hsDone) })

	case TypeMessageResponse:
		i.settle(env.ID, callResult{data: env.Data})

	case TypeError:
		var body errorBody
		if err := json.Unmarshal(env.Data, &body); err != nil || body.Message == "" {
			body.Message = "unknown remote error"
		}
		i.settle(env.ID, callResult{err: &RPCError{Message: body.Message}})
	}
}

// settle resolves exactly the pending entry matching id. The receive loop
// stays installed for the endpoint's lifetime so concurrent and future
// calls keep working.
func (i *Initiator) settle(id string, res callResult) {
	i.mu.Lock()
	ch, ok := i.pending[id]
	if ok {
		delete(i.pending, id)
	}
	i.mu.Unlock()

	if !ok {
		return
	}
	ch <- res
}

func (i *Initiator) removePending(id string) {
	i.mu.Lock()
	delete(i.pending, id)
	i.mu.Unlock()
}
