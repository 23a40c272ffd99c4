package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/getkayan/walletkit/api"
	"github.com/getkayan/walletkit/ceremony"
	"github.com/getkayan/walletkit/logger"
	"github.com/getkayan/walletkit/store"
	"github.com/getkayan/walletkit/telemetry"
)

// Storage keys, relative to the application namespace.
const (
	keySession  = "mfa.session"
	keyTokens   = "mfa.tokens"
	keyDeviceID = "device.id"

	keyCheckoutID = "trust.checkout"
	keyLocalTrust = "trust.local"
)

// API is the slice of the identity-provider client the state machine
// needs.
type API interface {
	BeginFlow(ctx context.Context, req api.BeginRequest) (*api.BeginResponse, error)
	SubmitFactor(ctx context.Context, req api.FactorRequest) (*api.FactorResponse, error)
}

// Params collects the collaborators for a Client. API and KV are
// required; the rest default to local no-op implementations.
type Params struct {
	API        API
	KV         store.KV
	Records    store.Records
	Ceremonies *ceremony.Manager
	Reporter   telemetry.Reporter
	Device     DeviceProvider
}

// Client is the MFA state machine. All state lives in the KV store;
// nothing is memory-only, so a process restart mid-flow resumes from
// SessionDetails.
type Client struct {
	api        API
	kv         store.KV
	records    store.Records
	ceremonies *ceremony.Manager
	reporter   telemetry.Reporter
	device     DeviceProvider
	log        *zap.Logger
}

func NewClient(p Params) *Client {
	c := &Client{
		api:        p.API,
		kv:         p.KV,
		records:    p.Records,
		ceremonies: p.Ceremonies,
		reporter:   p.Reporter,
		device:     p.Device,
		log:        logger.Log.Named("mfa"),
	}
	if c.reporter == nil {
		c.reporter = telemetry.Nop{}
	}
	if c.device == nil {
		c.device = NewLocalDevice(p.KV)
	}
	return c
}

// BeginOptions tunes BeginFlow.
type BeginOptions struct {
	// Flow hints signIn vs signUp; the server's answer wins.
	Flow string

	// Transaction carries the payload for transaction-confirmation
	// flows.
	Transaction json.RawMessage
}

// BeginFlow starts a new authentication flow for username. Any prior
// completed session is logged out first, since beginning a new flow
// invalidates the old completion.
func (c *Client) BeginFlow(ctx context.Context, username string, opts BeginOptions) (SessionResult, error) {
	ctx, span := telemetry.SpanFlow(ctx, opts.Flow)
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	if err = c.kv.Delete(ctx, keyTokens); err != nil {
		return SessionResult{}, fmt.Errorf("mfa: clear tokens: %w", err)
	}

	req := api.BeginRequest{
		Username:    username,
		Flow:        opts.Flow,
		Device:      c.device.Info(ctx),
		Transaction: opts.Transaction,
		TrustItems:  c.trustItems(ctx),
	}

	resp, err := c.api.BeginFlow(ctx, req)
	if err != nil {
		return SessionResult{}, err
	}

	rec := SessionRecord{
		Username: username,
		Flow:     resp.Flow,
		Next:     resp.Next,
		Session:  resp.Session,
	}
	if rec.Flow == "" {
		rec.Flow = opts.Flow
	}
	if err = c.saveRecord(ctx, rec); err != nil {
		return SessionResult{}, err
	}

	return c.project(rec, nil), nil
}

// PerformOptions tunes a single PerformAction call.
type PerformOptions struct {
	// Session overrides the persisted session token.
	Session string

	// Payload is the explicit factor payload: the OTP code for
	// otp:verify, the third-party token for external, or a passkey
	// challenge blob. When nil, whitelisted factor kinds resolve their
	// payload from the persisted factor list.
	Payload any

	// AutoFill requests a conditional-mediation passkey assertion.
	AutoFill bool
}

// PerformAction performs one factor. The result either completes the
// flow (tokens issued), advances it (a server challenge listing the
// remaining factors), or fails terminally. On terminal failure the
// persisted record is left untouched so the caller may retry the step.
func (c *Client) PerformAction(ctx context.Context, factor FactorName, opts PerformOptions) (SessionResult, error) {
	ctx, span := telemetry.SpanFactor(ctx, string(factor))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	rec := c.loadRecord(ctx)

	session := opts.Session
	if session == "" {
		session = rec.Session
	}
	if session == "" {
		err = ErrNoSession
		return SessionResult{}, err
	}
	if !knownFactor(factor) {
		err = ErrUnsupportedFactor
		return SessionResult{}, err
	}

	payload, err := c.resolvePayload(factor, opts, rec)
	if err != nil {
		return SessionResult{}, err
	}

	var resp *api.FactorResponse
	if isPasskey(factor) {
		resp, err = c.performPasskey(ctx, factor, session, payload, opts)
	} else {
		resp, err = c.api.SubmitFactor(ctx, api.FactorRequest{
			Session: session,
			Factor:  string(factor),
			Payload: payload,
		})
	}
	if err != nil {
		var ch *api.ChallengeError
		if errors.As(err, &ch) {
			// The server's normal vocabulary for "proceed to the next
			// factor" is an auth-style error carrying the fresh list.
			rec.Next = ch.Next
			rec.Session = ch.Session
			if ch.Flow != "" {
				rec.Flow = ch.Flow
			}
			if serr := c.saveRecord(ctx, rec); serr != nil {
				err = serr
				return SessionResult{}, err
			}
			err = nil
			return c.project(rec, nil), nil
		}

		c.reportAsync(session, err)
		return SessionResult{}, err
	}

	if resp.Issued() {
		tokens := TokenSet{
			IDToken:          resp.IDToken,
			AccessToken:      resp.AccessToken,
			RefreshToken:     resp.RefreshToken,
			PayloadSignature: resp.PayloadSignature,
		}
		if err = c.saveTokens(ctx, tokens); err != nil {
			return SessionResult{}, err
		}

		rec.Next = []Factor{}
		if resp.Session != "" {
			rec.Session = resp.Session
		}
		if err = c.saveRecord(ctx, rec); err != nil {
			return SessionResult{}, err
		}

		res := c.project(rec, &tokens)
		res.IsComplete = true
		return res, nil
	}

	// Intermediate success: an OTP dispatch only rotates the session so
	// the subsequent otp:verify has something to run against.
	if resp.Session != "" {
		rec.Session = resp.Session
		if err = c.saveRecord(ctx, rec); err != nil {
			return SessionResult{}, err
		}
	}
	return c.project(rec, nil), nil
}

// SessionDetails is the pure local projection of the persisted record
// and token set. No network, no side effects.
func (c *Client) SessionDetails(ctx context.Context) SessionResult {
	rec := c.loadRecord(ctx)
	tokens := c.loadTokens(ctx)

	res := c.project(rec, tokens)
	res.IsComplete = len(rec.Next) == 0 && tokens != nil
	return res
}

// Logout clears the token set and exhausts the session record.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.kv.Delete(ctx, keyTokens); err != nil {
		return fmt.Errorf("mfa: clear tokens: %w", err)
	}
	rec := c.loadRecord(ctx)
	rec.Next = []Factor{}
	rec.Session = ""
	return c.saveRecord(ctx, rec)
}

func (c *Client) performPasskey(ctx context.Context, factor FactorName, session string, payload json.RawMessage, opts PerformOptions) (*api.FactorResponse, error) {
	if c.ceremonies == nil {
		return nil, fmt.Errorf("mfa: no ceremony manager configured for %s", factor)
	}

	decoded, err := ceremony.DecodePayload(payload)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	switch decoded.Kind {
	case ceremony.KindRegistration:
		result, err = c.ceremonies.Create(ctx, decoded.Creation)
	case ceremony.KindAuthentication:
		result, err = c.ceremonies.Get(ctx, decoded.Request, ceremony.GetOptions{AutoFill: opts.AutoFill})
	}
	if err != nil {
		return nil, err
	}

	return c.api.SubmitFactor(ctx, api.FactorRequest{
		Session: session,
		Factor:  string(factor),
		Payload: result,
	})
}

// resolvePayload picks the payload for a factor: the caller's explicit
// payload wins; otherwise passkey and OTP-dispatch kinds look it up from
// the persisted factor list. Everything else fails fast before any I/O.
func (c *Client) resolvePayload(factor FactorName, opts PerformOptions, rec SessionRecord) (json.RawMessage, error) {
	if opts.Payload != nil {
		switch p := opts.Payload.(type) {
		case json.RawMessage:
			return p, nil
		case []byte:
			return p, nil
		default:
			data, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("mfa: encode payload: %w", err)
			}
			return data, nil
		}
	}

	switch factor {
	case FactorPasskeyReg, FactorPasskeyAuth, FactorPasskeyTx:
		if f := findFactor(rec.Next, factor); f != nil {
			for _, o := range f.Options {
				if len(o.Value) > 0 {
					return o.Value, nil
				}
			}
		}
	case FactorOTPEmail, FactorOTPSMS:
		if f := findFactor(rec.Next, factor); f != nil {
			for _, o := range f.Options {
				if o.Label != "" {
					return json.Marshal(struct {
						Contact string `json:"contact"`
					}{Contact: o.Label})
				}
			}
		}
	}
	return nil, ErrNoPayload
}

// trustItems gathers whatever continuity proofs exist locally. Absence
// is normal; anything else is logged and skipped.
func (c *Client) trustItems(ctx context.Context) []api.TrustItem {
	var items []api.TrustItem

	if c.records != nil {
		rec, err := c.records.FirstRecord(ctx)
		switch {
		case err == nil:
			items = append(items, api.TrustItem{Kind: api.TrustWallet, Value: rec.Token})
		case !errors.Is(err, store.ErrNotFound):
			c.log.Debug("wallet trust lookup failed", zap.Error(err))
		}
	}

	// Fixed order so identical local state always produces an identical
	// request body.
	for _, p := range []struct{ kind, key string }{
		{api.TrustCheckout, keyCheckoutID},
		{api.TrustLocal, keyLocalTrust},
	} {
		v, err := c.kv.Get(ctx, p.key)
		switch {
		case err == nil && v != "":
			items = append(items, api.TrustItem{Kind: p.kind, Value: v})
		case err != nil && !errors.Is(err, store.ErrNotFound):
			c.log.Debug("trust item lookup failed", zap.String("kind", p.kind), zap.Error(err))
		}
	}
	return items
}

func (c *Client) reportAsync(session string, cause error) {
	go func() {
		ctx := context.Background()
		rotated, err := c.reporter.ReportError(ctx, session, cause)
		if err != nil || rotated == "" {
			return
		}
		// The reporting endpoint rotated the session; adopt it so a
		// retry of the same step still has a live token.
		rec := c.loadRecord(ctx)
		rec.Session = rotated
		if err := c.saveRecord(ctx, rec); err != nil {
			c.log.Debug("session rotation persist failed", zap.Error(err))
		}
	}()
}

func (c *Client) project(rec SessionRecord, tokens *TokenSet) SessionResult {
	return SessionResult{
		Username:         rec.Username,
		Flow:             rec.Flow,
		Session:          rec.Session,
		RemainingFactors: projectFactors(rec.Next),
		NextAction:       nextAction(rec.Next),
		Tokens:           tokens,
	}
}

func (c *Client) loadRecord(ctx context.Context) SessionRecord {
	var rec SessionRecord
	v, err := c.kv.Get(ctx, keySession)
	if err != nil {
		return rec
	}
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		c.log.Warn("corrupt session record dropped", zap.Error(err))
	}
	return rec
}

func (c *Client) saveRecord(ctx context.Context, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("mfa: encode session record: %w", err)
	}
	if err := c.kv.Set(ctx, keySession, string(data)); err != nil {
		return fmt.Errorf("mfa: persist session record: %w", err)
	}
	return nil
}

func (c *Client) loadTokens(ctx context.Context) *TokenSet {
	v, err := c.kv.Get(ctx, keyTokens)
	if err != nil {
		return nil
	}
	var t TokenSet
	if err := json.Unmarshal([]byte(v), &t); err != nil {
		return nil
	}
	return &t
}

func (c *Client) saveTokens(ctx context.Context, t TokenSet) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("mfa: encode tokens: %w", err)
	}
	if err := c.kv.Set(ctx, keyTokens, string(data)); err != nil {
		return fmt.Errorf("mfa: persist tokens: %w", err)
	}
	return nil
}
