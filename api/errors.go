package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrTrustNotFound means the server conclusively rejected a trust
// identifier: it no longer exists or was never valid.
var ErrTrustNotFound = errors.New("api: trust identifier not found")

// ChallengeError is the server's "more factors required" signal. It
// arrives as an HTTP 401 whose body carries a fresh session and factor
// list; upstream it is a normal state transition, not a failure. The
// convention is a server API quirk preserved for compatibility and
// isolated here.
type ChallengeError struct {
	Session string   `json:"session"`
	Next    []Factor `json:"next"`
	Flow    string   `json:"flow,omitempty"`
}

func (e *ChallengeError) Error() string { return "api: additional factors required" }

// Error is a terminal server failure.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Message)
}

// classify decides what a non-2xx response means. Status code alone is
// not enough: a 401 is a challenge only when its body carries both a
// session and a next list.
func classify(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		var probe struct {
			Session *string          `json:"session"`
			Next    *json.RawMessage `json:"next"`
		}
		if err := json.Unmarshal(body, &probe); err == nil &&
			probe.Session != nil && probe.Next != nil {
			var ch ChallengeError
			if err := json.Unmarshal(body, &ch); err == nil {
				return &ch
			}
		}
	}

	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	msg := e.Message
	if msg == "" {
		msg = e.Error
	}
	if msg == "" {
		msg = string(body)
	}
	return &Error{Status: status, Message: msg}
}
