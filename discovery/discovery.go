// Package discovery decides, before any UI is shown, whether a checkout
// session runs embedded (inside the wallet frame) or redirects to the
// wallet origin. The policy is a three-tier ladder: trust the server's
// answer, fall back to the locally stamped validity flag when the server
// is unreachable, and default to redirect. A degraded network path must
// never wrongly grant the embedded flow.
package discovery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/getkayan/walletkit/api"
	"github.com/getkayan/walletkit/logger"
	"github.com/getkayan/walletkit/store"
)

// Flow is the discovery outcome.
type Flow string

const (
	// FlowEmbedded runs the wallet inside the iframe.
	FlowEmbedded Flow = "EMBED"

	// FlowEmbeddedContext is the embedded flow entered via a caller
	// supplied username hint; the trust check was skipped and the
	// server still enforces the actual factor requirements.
	FlowEmbeddedContext Flow = "EMBEDDED_CONTEXT"

	// FlowRedirect navigates the whole page to the wallet origin.
	FlowRedirect Flow = "REDIRECT"
)

// keyTrustValid is the locally stamped flag recording that a prior
// embedded flow completed successfully on this device.
const keyTrustValid = "trust.valid"

type Result struct {
	Username string `json:"username,omitempty"`
	Flow     Flow   `json:"flow"`
}

// TrustAPI is the slice of the identity-provider client discovery needs.
type TrustAPI interface {
	ValidateTrust(ctx context.Context, id, signKeyID string) error
}

type Strategy struct {
	kv      store.KV
	records store.Records
	api     TrustAPI
	log     *zap.Logger
}

func NewStrategy(kv store.KV, records store.Records, trustAPI TrustAPI) *Strategy {
	return &Strategy{
		kv:      kv,
		records: records,
		api:     trustAPI,
		log:     logger.Log.Named("discovery"),
	}
}

// Discover resolves the flow for one checkout session. It blocks for at
// most one network round-trip; every fallback is a local read.
func (s *Strategy) Discover(ctx context.Context, username string) (Result, error) {
	if username != "" {
		return Result{Username: username, Flow: FlowEmbeddedContext}, nil
	}

	rec, err := s.records.FirstRecord(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Flow: FlowRedirect}, nil
	}
	if err != nil {
		return Result{}, err
	}

	switch err := s.api.ValidateTrust(ctx, rec.ID, rec.SignKeyID); {
	case err == nil:
		return Result{Flow: FlowEmbedded}, nil

	case errors.Is(err, api.ErrTrustNotFound):
		// The identifier no longer exists server-side: drop the stale
		// record so the next discovery skips the round-trip, then let
		// the locally stamped flag make this session's call.
		if derr := s.records.DeleteRecord(ctx, rec.ID); derr != nil {
			s.log.Debug("stale trust record cleanup failed", zap.Error(derr))
		}
	default:
		// Inconclusive (network failure, 5xx).
		s.log.Debug("trust validation inconclusive", zap.Error(err))
	}

	if s.localValid(ctx) {
		return Result{Flow: FlowEmbedded}, nil
	}
	return Result{Flow: FlowRedirect}, nil
}

// MarkValid stamps the local validity flag after a successful embedded
// completion: the KV flag for fast reads, and the trust record itself so
// the stamp survives a volatile KV backend.
func (s *Strategy) MarkValid(ctx context.Context) error {
	if err := s.kv.Set(ctx, keyTrustValid, "true"); err != nil {
		return err
	}

	rec, err := s.records.FirstRecord(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.Valid = true
	return s.records.PutRecord(ctx, rec)
}

func (s *Strategy) localValid(ctx context.Context) bool {
	v, err := s.kv.Get(ctx, keyTrustValid)
	if err == nil && v == "true" {
		return true
	}

	rec, err := s.records.FirstRecord(ctx)
	return err == nil && rec.Valid
}
