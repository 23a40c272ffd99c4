package mfa

import "errors"

// Domain validation errors. They are synchronous and local: a call that
// fails with one of these never touched the network.
var (
	ErrNoSession         = errors.New("mfa: no session available")
	ErrNoPayload         = errors.New("mfa: no payload resolvable for factor")
	ErrUnsupportedFactor = errors.New("mfa: unsupported factor for current flow")
)
