// Package walletkit is the composition root of the embedded checkout
// authentication SDK. It wires the local store, the identity-provider
// client, the credential ceremony manager, discovery, and the MFA state
// machine together; the cross-context messaging endpoints live in the
// wire package and are attached per frame.
package walletkit

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/getkayan/walletkit/api"
	"github.com/getkayan/walletkit/ceremony"
	"github.com/getkayan/walletkit/config"
	"github.com/getkayan/walletkit/discovery"
	"github.com/getkayan/walletkit/mfa"
	"github.com/getkayan/walletkit/store"
	"github.com/getkayan/walletkit/telemetry"
	"github.com/getkayan/walletkit/wire"
)

// SDK holds one configured instance of every component, all sharing the
// same application namespace.
type SDK struct {
	Config     *config.Config
	KV         store.KV
	Records    store.Records
	API        *api.Client
	Ceremonies *ceremony.Manager
	Reporter   telemetry.Reporter
	Discovery  *discovery.Strategy
	MFA        *mfa.Client
}

// New builds an SDK from configuration. With a StoreDSN the on-disk
// sqlite database backs both the KV and record stores; a RedisAddr
// moves the KV to Redis while records stay in the database; with
// neither, everything is in-memory. auth may be nil when no passkey
// ceremonies will run in this process.
func New(cfg *config.Config, auth ceremony.Authenticator) (*SDK, error) {
	var (
		kv      store.KV
		records store.Records
	)
	if cfg.StoreDSN != "" {
		gs, err := store.Open(cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		kv, records = gs, gs
	} else {
		kv, records = store.NewMemoryKV(), store.NewMemoryRecords()
	}
	if cfg.RedisAddr != "" {
		kv = store.NewRedisKV(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), "")
	}

	return build(cfg, store.Namespaced(kv, cfg.AppID), records, auth), nil
}

// NewWithStores builds an SDK on caller-supplied stores. kv is
// namespaced by the configured application id.
func NewWithStores(cfg *config.Config, kv store.KV, records store.Records, auth ceremony.Authenticator) *SDK {
	return build(cfg, store.Namespaced(kv, cfg.AppID), records, auth)
}

func build(cfg *config.Config, kv store.KV, records store.Records, auth ceremony.Authenticator) *SDK {
	client := api.New(cfg.APIBaseURL, cfg.AppID)
	reporter := telemetry.NewAPIReporter(client)

	var ceremonies *ceremony.Manager
	if auth != nil {
		ceremonies = ceremony.NewManager(auth)
	}

	return &SDK{
		Config:     cfg,
		KV:         kv,
		Records:    records,
		API:        client,
		Ceremonies: ceremonies,
		Reporter:   reporter,
		Discovery:  discovery.NewStrategy(kv, records, client),
		MFA: mfa.NewClient(mfa.Params{
			API:        client,
			KV:         kv,
			Records:    records,
			Ceremonies: ceremonies,
			Reporter:   reporter,
		}),
	}
}

// InitiatorConfig translates the configured wire timings for callers
// building the merchant-side endpoint.
func (s *SDK) InitiatorConfig() wire.InitiatorConfig {
	return wire.InitiatorConfig{
		HandshakeInterval: s.Config.HandshakeInterval,
		HandshakeTimeout:  s.Config.HandshakeTimeout,
		CallTimeout:       s.Config.CallTimeout,
	}
}

// AttachWallet registers the wallet-side RPC methods on a responder and
// drains any requests that arrived while the wallet was bootstrapping.
func AttachWallet(r *wire.Responder, sdk *SDK) {
	r.AddMethod(wire.MethodDiscover, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Username string `json:"username,omitempty"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
		}
		return sdk.Discovery.Discover(ctx, req.Username)
	})

	r.AddMethod(wire.MethodSignTransaction, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Session string          `json:"session,omitempty"`
			Payload json.RawMessage `json:"payload,omitempty"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, err
			}
		}
		var payload any
		if len(req.Payload) > 0 {
			payload = req.Payload
		}
		return sdk.MFA.PerformAction(ctx, mfa.FactorPasskeyTx, mfa.PerformOptions{
			Session: req.Session,
			Payload: payload,
		})
	})

	r.ProcessPending()
}
