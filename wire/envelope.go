// Package wire implements the cross-context messaging protocol between a
// merchant page and an embedded wallet frame: handshake establishment,
// request/response correlation, pending-request queuing, and timeout
// propagation, all on top of an untyped one-way broadcast primitive.
package wire

import "encoding/json"

// Channel tags every envelope belonging to this protocol. Messages on the
// shared broadcast bus whose channel differs are not ours and must be
// ignored without side effects.
const Channel = "walletkit"

// RPC method names exposed across the boundary.
const (
	MethodDiscover        = "discover"
	MethodSignTransaction = "sign_transaction"
)

type MessageType string

const (
	TypeHandshake         MessageType = "handshake"
	TypeHandshakeResponse MessageType = "handshake-response"
	TypeMessage           MessageType = "message"
	TypeMessageResponse   MessageType = "message-response"
	TypeError             MessageType = "error"
)

// Envelope is the wire format for a single protocol message. ID carries
// the correlation id on request/response/error envelopes and is absent on
// handshake traffic.
type Envelope struct {
	Channel string          `json:"channel"`
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// errorBody is the only error shape that crosses the boundary. Structured
// error codes do not survive the wire.
type errorBody struct {
	Message string `json:"message"`
}

// decodeEnvelope parses raw event data, reporting whether it is a
// well-formed envelope on our channel.
func decodeEnvelope(data []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, false
	}
	if env.Channel != Channel || env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}
