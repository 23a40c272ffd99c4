package ceremony

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
)

// Kind discriminates a passkey payload.
type Kind string

const (
	KindRegistration   Kind = "reg"
	KindAuthentication Kind = "auth"
)

// ErrUnknownPayload means the blob is neither a tagged payload nor a
// recognizable set of creation/request options.
var ErrUnknownPayload = errors.New("ceremony: unrecognized passkey payload")

// Payload is a decoded passkey challenge blob. Exactly one of Creation or
// Request is set, matching Kind.
type Payload struct {
	Kind     Kind
	Creation *protocol.CredentialCreation
	Request  *protocol.CredentialAssertion
}

// DecodePayload parses a passkey challenge blob. The server-decided
// tagged form {"kind":"reg"|"auth","options":{...}} is authoritative;
// untagged blobs fall back to structural detection (rp+user means
// creation, rpId/allowCredentials means request) for sessions issued
// before the tag existed.
func DecodePayload(raw []byte) (*Payload, error) {
	var tagged struct {
		Kind    string          `json:"kind"`
		Options json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(raw, &tagged); err == nil && tagged.Kind != "" {
		switch Kind(tagged.Kind) {
		case KindRegistration:
			return decodeCreation(tagged.Options)
		case KindAuthentication:
			return decodeRequest(tagged.Options)
		default:
			return nil, fmt.Errorf("ceremony: unknown payload kind %q", tagged.Kind)
		}
	}

	opts := optionsBody(raw)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(opts, &probe); err != nil {
		return nil, ErrUnknownPayload
	}

	if _, hasRP := probe["rp"]; hasRP {
		if _, hasUser := probe["user"]; hasUser {
			return decodeCreation(opts)
		}
	}
	if _, ok := probe["rpId"]; ok {
		return decodeRequest(opts)
	}
	if _, ok := probe["allowCredentials"]; ok {
		return decodeRequest(opts)
	}
	return nil, ErrUnknownPayload
}

// optionsBody strips the {"publicKey": ...} wrapper when present.
func optionsBody(raw []byte) json.RawMessage {
	var w struct {
		PublicKey json.RawMessage `json:"publicKey"`
	}
	if err := json.Unmarshal(raw, &w); err == nil && len(w.PublicKey) > 0 {
		return w.PublicKey
	}
	return raw
}

func decodeCreation(raw json.RawMessage) (*Payload, error) {
	var cc protocol.CredentialCreation
	if err := json.Unmarshal(optionsBody(raw), &cc.Response); err != nil {
		return nil, fmt.Errorf("ceremony: decode creation options: %w", err)
	}
	return &Payload{Kind: KindRegistration, Creation: &cc}, nil
}

func decodeRequest(raw json.RawMessage) (*Payload, error) {
	var ca protocol.CredentialAssertion
	if err := json.Unmarshal(optionsBody(raw), &ca.Response); err != nil {
		return nil, fmt.Errorf("ceremony: decode request options: %w", err)
	}
	return &Payload{Kind: KindAuthentication, Request: &ca}, nil
}
