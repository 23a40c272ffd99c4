package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

// newTestProvider stands up a mock identity provider.
func newTestProvider(t *testing.T) (*echo.Echo, *Client) {
	t.Helper()
	e := echo.New()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return e, New(srv.URL, "app1")
}

func TestBeginFlow(t *testing.T) {
	e, c := newTestProvider(t)
	e.POST("/mfa/begin", func(ec echo.Context) error {
		var req BeginRequest
		if err := ec.Bind(&req); err != nil {
			return ec.JSON(http.StatusBadRequest, map[string]string{"message": "bad body"})
		}
		if req.Username != "alice" {
			t.Errorf("username = %q", req.Username)
		}
		if ec.Request().Header.Get("X-App-ID") != "app1" {
			t.Error("app id header missing")
		}
		return ec.JSON(http.StatusOK, BeginResponse{
			Flow:    "signIn",
			Session: "S1",
			Next: []Factor{{
				Action:  FactorAction{Name: "otp:email", Label: "Email"},
				Options: []FactorOption{{Label: "a***@x.com"}},
			}},
		})
	})

	resp, err := c.BeginFlow(context.Background(), BeginRequest{Username: "alice"})
	if err != nil {
		t.Fatalf("BeginFlow: %v", err)
	}
	if resp.Session != "S1" || len(resp.Next) != 1 || resp.Next[0].Action.Name != "otp:email" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSubmitFactorChallengeClassification(t *testing.T) {
	e, c := newTestProvider(t)
	e.POST("/mfa/factor", func(ec echo.Context) error {
		return ec.JSON(http.StatusUnauthorized, map[string]any{
			"session": "S2",
			"next": []Factor{{
				Action: FactorAction{Name: "otp:verify", Label: "Code"},
			}},
		})
	})

	_, err := c.SubmitFactor(context.Background(), FactorRequest{Session: "S1", Factor: "otp:email"})
	var ch *ChallengeError
	if !errors.As(err, &ch) {
		t.Fatalf("err = %v, want *ChallengeError", err)
	}
	if ch.Session != "S2" || len(ch.Next) != 1 || ch.Next[0].Action.Name != "otp:verify" {
		t.Fatalf("challenge = %+v", ch)
	}
}

func TestSubmitFactorPlain401IsTerminal(t *testing.T) {
	e, c := newTestProvider(t)
	e.POST("/mfa/factor", func(ec echo.Context) error {
		// A 401 without the session+next body shape is a real
		// authentication failure, not a challenge.
		return ec.JSON(http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
	})

	_, err := c.SubmitFactor(context.Background(), FactorRequest{Session: "S1", Factor: "otp:verify"})
	var ch *ChallengeError
	if errors.As(err, &ch) {
		t.Fatal("plain 401 misclassified as challenge")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Message != "bad credentials" {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmitFactorServerError(t *testing.T) {
	e, c := newTestProvider(t)
	e.POST("/mfa/factor", func(ec echo.Context) error {
		return ec.JSON(http.StatusInternalServerError, map[string]string{"error": "boom"})
	})

	_, err := c.SubmitFactor(context.Background(), FactorRequest{Session: "S1", Factor: "otp:verify"})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError || apiErr.Message != "boom" {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateTrust(t *testing.T) {
	e, c := newTestProvider(t)
	known := map[string]bool{"t1": true}
	e.POST("/trust/validate", func(ec echo.Context) error {
		var req struct {
			ID        string `json:"id"`
			SignKeyID string `json:"sign_key_id"`
		}
		if err := ec.Bind(&req); err != nil {
			return ec.NoContent(http.StatusBadRequest)
		}
		if req.ID != "" && req.SignKeyID == "" {
			t.Error("sign key id missing from validation request")
		}
		if !known[req.ID] {
			return ec.JSON(http.StatusNotFound, map[string]string{"message": "unknown identifier"})
		}
		return ec.NoContent(http.StatusOK)
	})

	if err := c.ValidateTrust(context.Background(), "t1", "key-1"); err != nil {
		t.Fatalf("valid id: %v", err)
	}
	if err := c.ValidateTrust(context.Background(), "t2", "key-1"); !errors.Is(err, ErrTrustNotFound) {
		t.Fatalf("err = %v, want ErrTrustNotFound", err)
	}
}

func TestReportErrorRotatesSession(t *testing.T) {
	e, c := newTestProvider(t)
	e.POST("/telemetry/error", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"session": "S9"})
	})

	rotated, err := c.ReportError(context.Background(), "S1", "something broke")
	if err != nil {
		t.Fatalf("ReportError: %v", err)
	}
	if rotated != "S9" {
		t.Fatalf("rotated = %q", rotated)
	}
}

func TestClassifyShapes(t *testing.T) {
	// Challenge needs both fields present; an empty next list is still
	// a well-formed challenge.
	err := classify(http.StatusUnauthorized, []byte(`{"session":"S1","next":[]}`))
	var ch *ChallengeError
	if !errors.As(err, &ch) || ch.Session != "S1" {
		t.Fatalf("err = %v", err)
	}

	// Missing next: terminal.
	if err := classify(http.StatusUnauthorized, []byte(`{"session":"S1"}`)); errors.As(err, &ch) {
		t.Fatal("session-only body misclassified as challenge")
	}

	// Right body, wrong status: terminal.
	if err := classify(http.StatusForbidden, []byte(`{"session":"S1","next":[]}`)); errors.As(err, &ch) {
		t.Fatal("403 misclassified as challenge")
	}
}
