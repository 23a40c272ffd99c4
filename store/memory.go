package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryKV is an in-process KV implementation. Useful for tests and for
// environments without durable storage.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// MemoryRecords is an in-process Records implementation.
type MemoryRecords struct {
	mu   sync.RWMutex
	recs map[string]*TrustRecord
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{recs: make(map[string]*TrustRecord)}
}

func (m *MemoryRecords) FirstRecord(_ context.Context) (*TrustRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.recs) == 0 {
		return nil, ErrNotFound
	}

	all := make([]*TrustRecord, 0, len(m.recs))
	for _, r := range m.recs {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	cp := *all[0]
	return &cp, nil
}

func (m *MemoryRecords) PutRecord(_ context.Context, rec *TrustRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.recs[cp.ID] = &cp
	return nil
}

func (m *MemoryRecords) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}
