package store

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry is the gorm model backing the on-disk key-value store.
type KVEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }

// GormStore backs both the KV and Records contracts with a single
// database handle, so the SDK's on-disk state lives in one file.
type GormStore struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at dsn and migrates the
// SDK's tables.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm handle. Callers that share a
// database with application state should prefer this over Open.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&KVEntry{}, &TrustRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, key string) (string, error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (s *GormStore) Set(ctx context.Context, key, value string) error {
	entry := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&KVEntry{}, "key = ?", key).Error
}

func (s *GormStore) FirstRecord(ctx context.Context) (*TrustRecord, error) {
	var rec TrustRecord
	err := s.db.WithContext(ctx).Order("created_at").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) PutRecord(ctx context.Context, rec *TrustRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

func (s *GormStore) DeleteRecord(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&TrustRecord{}, "id = ?", id).Error
}
