// Package ceremony is the boundary to the platform credential API. It
// exposes passkey creation/assertion as opaque async operations and owns
// the one-ceremony-at-a-time cancellation rule.
package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
)

// Platform error categories. Authenticator implementations map their
// native failures onto this closed set.
var (
	ErrCanceled   = errors.New("ceremony: canceled")
	ErrNotAllowed = errors.New("ceremony: not allowed")
	ErrSecurity   = errors.New("ceremony: security error")
	ErrConstraint = errors.New("ceremony: constraint error")
)

// GetOptions tunes an assertion ceremony.
type GetOptions struct {
	// AutoFill requests a conditional-mediation (autofill) ceremony.
	AutoFill bool
}

// Authenticator performs credential ceremonies. Both results are the
// serialized attestation/assertion exactly as it will be submitted to the
// server; the SDK never looks inside.
type Authenticator interface {
	Create(ctx context.Context, opts *protocol.CredentialCreation) (json.RawMessage, error)
	Get(ctx context.Context, opts *protocol.CredentialAssertion, g GetOptions) (json.RawMessage, error)
}

// Manager serializes ceremonies: the platform allows one active ceremony
// per frame, so starting a new one first cancels any still in flight.
// Lifetime is explicit; there is no package-level state.
type Manager struct {
	auth Authenticator

	mu      sync.Mutex
	cancel  context.CancelFunc
	current uint64
}

func NewManager(auth Authenticator) *Manager {
	return &Manager{auth: auth}
}

// Create runs a registration ceremony.
func (m *Manager) Create(ctx context.Context, opts *protocol.CredentialCreation) (json.RawMessage, error) {
	ctx, done := m.begin(ctx)
	defer done()

	out, err := m.auth.Create(ctx, opts)
	return out, mapContextErr(ctx, err)
}

// Get runs an assertion ceremony.
func (m *Manager) Get(ctx context.Context, opts *protocol.CredentialAssertion, g GetOptions) (json.RawMessage, error) {
	ctx, done := m.begin(ctx)
	defer done()

	out, err := m.auth.Get(ctx, opts, g)
	return out, mapContextErr(ctx, err)
}

// CancelCurrent aborts the in-flight ceremony, if any.
func (m *Manager) CancelCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) begin(parent context.Context) (context.Context, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.current++
	id := m.current

	return ctx, func() {
		m.mu.Lock()
		if m.current == id {
			m.cancel = nil
		}
		m.mu.Unlock()
		cancel()
	}
}

func mapContextErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ErrCanceled
	}
	return err
}
