// Package api is the REST client for the identity provider: begin-flow,
// factor submission, trust-identifier validation, and error reporting.
// Challenge classification (the 401 "next step" convention) lives here so
// the rest of the SDK never inspects HTTP statuses.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the identity provider.
type Client struct {
	BaseURL    string
	AppID      string
	HTTPClient *http.Client
}

func New(baseURL, appID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		AppID:      appID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// BeginFlow starts (or restarts) an authentication flow.
func (c *Client) BeginFlow(ctx context.Context, req BeginRequest) (*BeginResponse, error) {
	var resp BeginResponse
	if err := c.post(ctx, "/mfa/begin", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitFactor submits one factor against the current session. A
// *ChallengeError return means the step succeeded but more factors
// remain.
func (c *Client) SubmitFactor(ctx context.Context, req FactorRequest) (*FactorResponse, error) {
	var resp FactorResponse
	if err := c.post(ctx, "/mfa/factor", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateTrust asks the server whether a trust identifier is still
// valid. signKeyID names the key pair the token was signed with, so the
// server can check the right key. ErrTrustNotFound means conclusively
// invalid; any other error is inconclusive and the caller falls back to
// local state.
func (c *Client) ValidateTrust(ctx context.Context, id, signKeyID string) error {
	body := struct {
		ID        string `json:"id"`
		SignKeyID string `json:"sign_key_id,omitempty"`
	}{ID: id, SignKeyID: signKeyID}

	err := c.post(ctx, "/trust/validate", body, nil)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return ErrTrustNotFound
	}
	return err
}

// ReportError reports a flow failure. The server may rotate the session;
// the returned string is the fresh session token, or empty.
func (c *Client) ReportError(ctx context.Context, session, message string) (string, error) {
	var resp reportResponse
	err := c.post(ctx, "/telemetry/error", reportRequest{Session: session, Message: message}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Session, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AppID != "" {
		req.Header.Set("X-App-ID", c.AppID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return classify(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}
	return nil
}
