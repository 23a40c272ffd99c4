// Package mfa drives the server-directed multi-factor authentication
// flow. The server, not the client, decides the next required factor
// after every step; this package tracks progress, persists resumable
// session state per application id, and classifies "more factors
// required" challenges as normal state transitions.
package mfa

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/getkayan/walletkit/api"
)

// FactorName identifies one authentication step kind. The set is closed.
type FactorName string

const (
	FactorPasskeyReg  FactorName = "passkey:reg"
	FactorPasskeyAuth FactorName = "passkey:auth"
	FactorPasskeyTx   FactorName = "passkey:tx"
	FactorOTPEmail    FactorName = "otp:email"
	FactorOTPSMS      FactorName = "otp:sms"
	FactorOTPVerify   FactorName = "otp:verify"
	FactorExternal    FactorName = "external"
)

// Flow kinds.
const (
	FlowSignIn = "signIn"
	FlowSignUp = "signUp"
)

// Factor aliases the wire shape; the state machine persists it verbatim.
type Factor = api.Factor

func knownFactor(f FactorName) bool {
	switch f {
	case FactorPasskeyReg, FactorPasskeyAuth, FactorPasskeyTx,
		FactorOTPEmail, FactorOTPSMS, FactorOTPVerify, FactorExternal:
		return true
	}
	return false
}

func isPasskey(f FactorName) bool {
	return f == FactorPasskeyReg || f == FactorPasskeyAuth || f == FactorPasskeyTx
}

func isOTP(f FactorName) bool {
	return f == FactorOTPEmail || f == FactorOTPSMS || f == FactorOTPVerify
}

// SessionRecord is the persisted MFA session snapshot. Every state
// transition is durably written before the next network call, so a
// reload mid-flow resumes from SessionDetails.
type SessionRecord struct {
	Username string   `json:"username,omitempty"`
	Flow     string   `json:"flow,omitempty"`
	Next     []Factor `json:"next,omitempty"`
	Session  string   `json:"session,omitempty"`
}

// TokenSet is the terminal artifact of a completed flow, persisted as
// short-lived credentials separate from the session record.
type TokenSet struct {
	IDToken          string `json:"id_token"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	PayloadSignature string `json:"payload_signature,omitempty"`
}

// Claims returns the id token's claims without signature verification.
// The SDK is not the token's audience; verification belongs to whoever
// consumes it.
func (t *TokenSet) Claims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(t.IDToken, claims)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Expired reports whether the id token's exp claim has passed. Tokens
// without a parseable exp are treated as expired.
func (t *TokenSet) Expired(now time.Time) bool {
	claims, err := t.Claims()
	if err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(now)
}

// RemainingFactor is the client-friendly projection of one pending
// factor.
type RemainingFactor struct {
	Type        string          `json:"type"`
	Label       string          `json:"label"`
	Description string          `json:"description,omitempty"`
	Options     []string        `json:"options,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

// SessionResult is what every state-machine operation returns.
type SessionResult struct {
	Username         string            `json:"username,omitempty"`
	Flow             string            `json:"flow,omitempty"`
	Session          string            `json:"session,omitempty"`
	RemainingFactors []RemainingFactor `json:"remainingFactors"`
	NextAction       string            `json:"nextAction,omitempty"`
	IsComplete       bool              `json:"isComplete"`
	Tokens           *TokenSet         `json:"tokens,omitempty"`
}
