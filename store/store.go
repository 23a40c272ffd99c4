// Package store provides the local persistence contracts used by the SDK:
// a namespaced key-value store for small flags and snapshots, and a record
// store for trust/checkout identifiers kept in an indexed on-disk database.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or record does not exist.
var ErrNotFound = errors.New("store: not found")

// KV is a minimal key-value contract. Implementations must treat every
// write as a whole-value replace; callers rely on last-writer-wins.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// TrustRecord is a locally materialized trust/checkout identifier: a
// signed, key-paired token proving continuity of this device across
// sessions.
type TrustRecord struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Token     string    `json:"token"`
	SignKeyID string    `gorm:"index" json:"sign_key_id"`
	Valid     bool      `json:"valid"`
	CreatedAt time.Time `json:"created_at"`
}

func (TrustRecord) TableName() string { return "trust_records" }

// Records is the contract for stores keyed by record id.
type Records interface {
	// FirstRecord returns the oldest stored record, or ErrNotFound.
	FirstRecord(ctx context.Context) (*TrustRecord, error)

	// PutRecord upserts by primary key.
	PutRecord(ctx context.Context, rec *TrustRecord) error

	DeleteRecord(ctx context.Context, id string) error
}

// Namespaced wraps a KV so all keys are prefixed with an application id.
func Namespaced(kv KV, appID string) KV {
	return &namespacedKV{kv: kv, prefix: appID + ":"}
}

type namespacedKV struct {
	kv     KV
	prefix string
}

func (n *namespacedKV) Get(ctx context.Context, key string) (string, error) {
	return n.kv.Get(ctx, n.prefix+key)
}

func (n *namespacedKV) Set(ctx context.Context, key, value string) error {
	return n.kv.Set(ctx, n.prefix+key, value)
}

func (n *namespacedKV) Delete(ctx context.Context, key string) error {
	return n.kv.Delete(ctx, n.prefix+key)
}
