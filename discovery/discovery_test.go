package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/getkayan/walletkit/api"
	"github.com/getkayan/walletkit/store"
)

type mockTrustAPI struct {
	err        error
	calls      int
	lastID     string
	lastSignKy string
}

func (m *mockTrustAPI) ValidateTrust(_ context.Context, id, signKeyID string) error {
	m.calls++
	m.lastID = id
	m.lastSignKy = signKeyID
	return m.err
}

func fixture(t *testing.T, trustErr error, withRecord, localValid bool) (*Strategy, *mockTrustAPI) {
	t.Helper()
	ctx := context.Background()

	kv := store.Namespaced(store.NewMemoryKV(), "app1")
	records := store.NewMemoryRecords()
	if withRecord {
		if err := records.PutRecord(ctx, &store.TrustRecord{ID: "t1", Token: "tok"}); err != nil {
			t.Fatal(err)
		}
	}
	mock := &mockTrustAPI{err: trustErr}
	s := NewStrategy(kv, records, mock)
	if localValid {
		if err := s.MarkValid(ctx); err != nil {
			t.Fatal(err)
		}
	}
	return s, mock
}

func TestDiscoverUsernameHintShortCircuits(t *testing.T) {
	s, mock := fixture(t, errors.New("server down"), true, false)

	res, err := s.Discover(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if res.Flow != FlowEmbeddedContext || res.Username != "alice" {
		t.Fatalf("res = %+v", res)
	}
	if mock.calls != 0 {
		t.Error("hint path must skip the trust check")
	}
}

func TestDiscoverNoLocalIdentifier(t *testing.T) {
	s, mock := fixture(t, nil, false, true)

	res, err := s.Discover(context.Background(), "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if res.Flow != FlowRedirect {
		t.Fatalf("flow = %s, want REDIRECT", res.Flow)
	}
	if mock.calls != 0 {
		t.Error("no identifier must mean no network round-trip")
	}
}

func TestDiscoverDropsStaleRecordOn404(t *testing.T) {
	ctx := context.Background()
	kv := store.Namespaced(store.NewMemoryKV(), "app1")
	records := store.NewMemoryRecords()
	if err := records.PutRecord(ctx, &store.TrustRecord{ID: "t1", Token: "tok"}); err != nil {
		t.Fatal(err)
	}
	mock := &mockTrustAPI{err: api.ErrTrustNotFound}
	s := NewStrategy(kv, records, mock)

	if res, err := s.Discover(ctx, ""); err != nil || res.Flow != FlowRedirect {
		t.Fatalf("res = %+v, err = %v", res, err)
	}

	// The stale identifier is gone: the next call redirects without a
	// round-trip.
	if res, err := s.Discover(ctx, ""); err != nil || res.Flow != FlowRedirect {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if mock.calls != 1 {
		t.Fatalf("trust check called %d times, want 1", mock.calls)
	}
}

func TestDiscoverFallbackLadder(t *testing.T) {
	cases := []struct {
		name       string
		trustErr   error
		localValid bool
		want       Flow
	}{
		{"server confirms", nil, false, FlowEmbedded},
		{"server 404, flag false", api.ErrTrustNotFound, false, FlowRedirect},
		{"server 404, flag true", api.ErrTrustNotFound, true, FlowEmbedded},
		{"server down, flag false", errors.New("dial tcp: timeout"), false, FlowRedirect},
		{"server down, flag true", errors.New("dial tcp: timeout"), true, FlowEmbedded},
		{"server 5xx, flag true", &api.Error{Status: 503, Message: "unavailable"}, true, FlowEmbedded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := fixture(t, tc.trustErr, true, tc.localValid)
			res, err := s.Discover(context.Background(), "")
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if res.Flow != tc.want {
				t.Fatalf("flow = %s, want %s", res.Flow, tc.want)
			}
			if mock.calls != 1 {
				t.Fatalf("trust check called %d times", mock.calls)
			}
		})
	}
}

func TestDiscoverSendsSignKeyID(t *testing.T) {
	ctx := context.Background()
	kv := store.Namespaced(store.NewMemoryKV(), "app1")
	records := store.NewMemoryRecords()
	if err := records.PutRecord(ctx, &store.TrustRecord{ID: "t1", Token: "tok", SignKeyID: "key-9"}); err != nil {
		t.Fatal(err)
	}
	mock := &mockTrustAPI{}
	s := NewStrategy(kv, records, mock)

	if _, err := s.Discover(ctx, ""); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if mock.lastID != "t1" || mock.lastSignKy != "key-9" {
		t.Fatalf("validated (%q, %q)", mock.lastID, mock.lastSignKy)
	}
}

func TestMarkValidStampsRecord(t *testing.T) {
	ctx := context.Background()
	kv := store.Namespaced(store.NewMemoryKV(), "app1")
	records := store.NewMemoryRecords()
	if err := records.PutRecord(ctx, &store.TrustRecord{ID: "t1", Token: "tok"}); err != nil {
		t.Fatal(err)
	}
	s := NewStrategy(kv, records, &mockTrustAPI{})

	if err := s.MarkValid(ctx); err != nil {
		t.Fatalf("MarkValid: %v", err)
	}
	rec, err := records.FirstRecord(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Valid {
		t.Fatal("record not stamped valid")
	}
}

func TestLocalFallbackReadsRecordStamp(t *testing.T) {
	// The KV flag may live in a volatile backend; with it gone, the
	// stamped record still carries the validity across a restart.
	ctx := context.Background()
	kv := store.Namespaced(store.NewMemoryKV(), "app1")
	records := store.NewMemoryRecords()
	if err := records.PutRecord(ctx, &store.TrustRecord{ID: "t1", Token: "tok", Valid: true}); err != nil {
		t.Fatal(err)
	}
	s := NewStrategy(kv, records, &mockTrustAPI{err: errors.New("dial tcp: timeout")})

	res, err := s.Discover(ctx, "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if res.Flow != FlowEmbedded {
		t.Fatalf("flow = %s, want %s", res.Flow, FlowEmbedded)
	}
}
