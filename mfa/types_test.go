package mfa

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func unsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "."
}

func TestTokenSetClaims(t *testing.T) {
	now := time.Now()
	ts := &TokenSet{IDToken: unsignedJWT(t, map[string]any{
		"sub": "alice",
		"exp": now.Add(time.Hour).Unix(),
	})}

	claims, err := ts.Claims()
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if sub, _ := claims.GetSubject(); sub != "alice" {
		t.Errorf("sub = %q", sub)
	}
	if ts.Expired(now) {
		t.Error("token expired an hour early")
	}
	if !ts.Expired(now.Add(2 * time.Hour)) {
		t.Error("token never expired")
	}
}

func TestTokenSetExpiredOnGarbage(t *testing.T) {
	ts := &TokenSet{IDToken: "not-a-jwt"}
	if !ts.Expired(time.Now()) {
		t.Error("unparseable token treated as live")
	}

	ts = &TokenSet{IDToken: unsignedJWT(t, map[string]any{"sub": "alice"})}
	if !ts.Expired(time.Now()) {
		t.Error("token without exp treated as live")
	}
}
