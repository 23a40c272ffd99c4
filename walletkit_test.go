package walletkit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/getkayan/walletkit"
	"github.com/getkayan/walletkit/config"
	"github.com/getkayan/walletkit/discovery"
	"github.com/getkayan/walletkit/store"
	"github.com/getkayan/walletkit/wire"
)

const (
	merchantOrigin = "https://shop.example"
	walletOrigin   = "https://wallet.example"
)

// newTestSDK wires an SDK against a mock identity provider that knows
// one trust identifier.
func newTestSDK(t *testing.T) (*walletkit.SDK, store.Records) {
	t.Helper()

	e := echo.New()
	e.POST("/trust/validate", func(ec echo.Context) error {
		var req struct {
			ID string `json:"id"`
		}
		if err := ec.Bind(&req); err != nil {
			return ec.NoContent(http.StatusBadRequest)
		}
		if req.ID != "trusted-1" {
			return ec.JSON(http.StatusNotFound, map[string]string{"message": "unknown identifier"})
		}
		return ec.NoContent(http.StatusOK)
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		AppID:        "app1",
		APIBaseURL:   srv.URL,
		WalletOrigin: walletOrigin,
	}
	records := store.NewMemoryRecords()
	sdk := walletkit.NewWithStores(cfg, store.NewMemoryKV(), records, nil)
	return sdk, records
}

// fastConfig keeps handshake retries from dominating test time.
func fastConfig() wire.InitiatorConfig {
	return wire.InitiatorConfig{
		HandshakeInterval: 5 * time.Millisecond,
		HandshakeTimeout:  2 * time.Second,
		CallTimeout:       2 * time.Second,
	}
}

func TestDiscoverOverWire(t *testing.T) {
	sdk, records := newTestSDK(t)

	merchantBus, walletBus := wire.Pipe(merchantOrigin, walletOrigin)
	responder := wire.NewResponder(walletBus, "*")
	defer responder.Close()
	walletkit.AttachWallet(responder, sdk)

	initiator := wire.NewInitiatorWithConfig(merchantBus, walletOrigin, fastConfig())
	defer initiator.Close()

	ctx := context.Background()

	// No trust record on this device yet: redirect, no network call.
	raw, err := initiator.Call(ctx, wire.MethodDiscover, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	var res discovery.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Flow != discovery.FlowRedirect {
		t.Fatalf("flow = %q, want %q", res.Flow, discovery.FlowRedirect)
	}

	// A server-validated trust record upgrades to the embedded flow.
	if err := records.PutRecord(ctx, &store.TrustRecord{ID: "trusted-1", Valid: true}); err != nil {
		t.Fatalf("put record: %v", err)
	}
	raw, err = initiator.Call(ctx, wire.MethodDiscover, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Flow != discovery.FlowEmbedded {
		t.Fatalf("flow = %q, want %q", res.Flow, discovery.FlowEmbedded)
	}

	// A username hint short-circuits straight to the embedded flow.
	raw, err = initiator.Call(ctx, wire.MethodDiscover, map[string]string{"username": "alice"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Flow != discovery.FlowEmbeddedContext || res.Username != "alice" {
		t.Fatalf("result = %+v", res)
	}
}

func TestAttachWalletDrainsEarlyRequests(t *testing.T) {
	sdk, _ := newTestSDK(t)

	merchantBus, walletBus := wire.Pipe(merchantOrigin, walletOrigin)
	responder := wire.NewResponder(walletBus, "*")
	defer responder.Close()

	initiator := wire.NewInitiatorWithConfig(merchantBus, walletOrigin, fastConfig())
	defer initiator.Close()

	// Issue the call before the wallet registers any methods; the
	// responder must hold it and answer once AttachWallet drains.
	type callOut struct {
		raw json.RawMessage
		err error
	}
	done := make(chan callOut, 1)
	go func() {
		raw, err := initiator.Call(context.Background(), wire.MethodDiscover, nil)
		done <- callOut{raw, err}
	}()

	// Wait until the request is actually queued before attaching.
	pending := responder.PendingRequests(context.Background(), 2*time.Second)
	if len(pending) != 1 || pending[0].Method != wire.MethodDiscover {
		t.Fatalf("pending = %+v", pending)
	}

	walletkit.AttachWallet(responder, sdk)

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("call: %v", out.err)
		}
		var res discovery.Result
		if err := json.Unmarshal(out.raw, &res); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		if res.Flow != discovery.FlowRedirect {
			t.Fatalf("flow = %q, want %q", res.Flow, discovery.FlowRedirect)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued call never answered")
	}
}
