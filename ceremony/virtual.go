package ceremony

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
)

// VirtualAuthenticator is a software authenticator producing real
// attestations and assertions. It backs tests and headless integration
// environments where no platform authenticator exists.
type VirtualAuthenticator struct {
	rp   virtualwebauthn.RelyingParty
	auth virtualwebauthn.Authenticator
	cred virtualwebauthn.Credential
}

func NewVirtualAuthenticator(rpID, rpName, origin string) *VirtualAuthenticator {
	return &VirtualAuthenticator{
		rp:   virtualwebauthn.RelyingParty{Name: rpName, ID: rpID, Origin: origin},
		auth: virtualwebauthn.NewAuthenticator(),
		cred: virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2),
	}
}

// CredentialID exposes the virtual credential's id so tests can build
// matching allowCredentials lists.
func (v *VirtualAuthenticator) CredentialID() []byte { return v.cred.ID }

func (v *VirtualAuthenticator) Create(ctx context.Context, opts *protocol.CredentialCreation) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(opts.Response)
	if err != nil {
		return nil, err
	}
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	if err != nil {
		return nil, fmt.Errorf("ceremony: parse attestation options: %w", err)
	}

	resp := virtualwebauthn.CreateAttestationResponse(v.rp, v.auth, v.cred, *parsed)
	v.auth.AddCredential(v.cred)
	return json.RawMessage(resp), nil
}

func (v *VirtualAuthenticator) Get(ctx context.Context, opts *protocol.CredentialAssertion, _ GetOptions) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(opts.Response)
	if err != nil {
		return nil, err
	}
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	if err != nil {
		return nil, fmt.Errorf("ceremony: parse assertion options: %w", err)
	}

	resp := virtualwebauthn.CreateAssertionResponse(v.rp, v.auth, v.cred, *parsed)
	return json.RawMessage(resp), nil
}
