package store

import (
	"sync"
	"time"
)

// Memory is a map-backed Store. Nothing survives Close.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]Record
	closed bool
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]Record)}
}

func (m *Memory) Get(key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Record{}, storageErr("get", key, ErrClosed)
	}
	rec, ok := m.items[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Value = append([]byte(nil), rec.Value...)
	return rec, nil
}

func (m *Memory) Upsert(rec Record) error {
	rec.Value = append([]byte(nil), rec.Value...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return storageErr("upsert", rec.Key, ErrClosed)
	}
	m.items[rec.Key] = rec
	return nil
}

func (m *Memory) Delete(key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, storageErr("delete", key, ErrClosed)
	}
	if _, ok := m.items[key]; !ok {
		return 0, nil
	}
	delete(m.items, key)
	return 1, nil
}

func (m *Memory) DeleteCreatedBefore(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, storageErr("delete_before", "", ErrClosed)
	}
	n := 0
	for k, rec := range m.items {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteKeyCreatedBefore(key string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, storageErr("delete_before", key, ErrClosed)
	}
	rec, ok := m.items[key]
	if !ok || !rec.CreatedAt.Before(cutoff) {
		return 0, nil
	}
	delete(m.items, key)
	return 1, nil
}

// Len returns the number of records, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = make(map[string]Record)
	return nil
}

var _ Store = (*Memory)(nil)
