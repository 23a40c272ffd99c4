package api

import "encoding/json"

// Factor is one remaining authentication step the server is demanding.
type Factor struct {
	Action  FactorAction   `json:"action"`
	Options []FactorOption `json:"options,omitempty"`
}

type FactorAction struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Desc  string `json:"desc,omitempty"`
}

// FactorOption carries either a labelled choice (a masked OTP
// destination) or an opaque value (a passkey challenge blob).
type FactorOption struct {
	Label string          `json:"label,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// DeviceInfo is the fingerprint submitted when a flow begins.
type DeviceInfo struct {
	ID        string `json:"id"`
	Platform  string `json:"platform,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// TrustItem is one locally held continuity proof attached to a
// begin-flow request.
type TrustItem struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Trust item kinds.
const (
	TrustWallet   = "wallet"
	TrustCheckout = "checkout"
	TrustLocal    = "local"
)

type BeginRequest struct {
	Username    string          `json:"username,omitempty"`
	Flow        string          `json:"flow,omitempty"`
	Device      DeviceInfo      `json:"device"`
	Transaction json.RawMessage `json:"transaction,omitempty"`
	TrustItems  []TrustItem     `json:"trust_items,omitempty"`
}

type BeginResponse struct {
	Flow    string   `json:"flow"`
	Session string   `json:"session"`
	Next    []Factor `json:"next"`
}

type FactorRequest struct {
	Session string          `json:"session"`
	Factor  string          `json:"factor"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FactorResponse is the success shape for a factor submission. A terminal
// success carries the token set; an intermediate success (OTP dispatch)
// carries only a rotated session.
type FactorResponse struct {
	Session          string `json:"session,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	AccessToken      string `json:"access_token,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	PayloadSignature string `json:"payload_signature,omitempty"`
}

// Issued reports whether the response carries a token set.
func (r *FactorResponse) Issued() bool {
	return r.IDToken != "" || r.AccessToken != ""
}

type reportRequest struct {
	Session string `json:"session,omitempty"`
	Message string `json:"message"`
}

type reportResponse struct {
	Session string `json:"session,omitempty"`
}
