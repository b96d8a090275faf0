package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store. Records are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) FindByAddress(ctx context.Context, addr string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Insert(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.IPAddress]; exists {
		return fmt.Errorf("device record %s already exists", rec.IPAddress)
	}
	m.records[rec.IPAddress] = rec.Clone()
	return nil
}

func (m *Memory) Update(ctx context.Context, addr string, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[addr]
	if !ok {
		return ErrNotFound
	}
	existing.applySighting(rec.Clone())
	return nil
}

// Upsert inserts or updates under a single lock
func (m *Memory) Upsert(ctx context.Context, rec *Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[rec.IPAddress]; ok {
		existing.applySighting(rec.Clone())
		return false, nil
	}

	c := rec.Clone()
	if c.FirstSeen.IsZero() {
		c.FirstSeen = c.LastSeen
	}
	m.records[rec.IPAddress] = c
	return true, nil
}

func (m *Memory) List(ctx context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IPAddress < out[j].IPAddress })
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
