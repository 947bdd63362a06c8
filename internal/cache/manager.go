// Package cache decides, per key, whether a stored record may be served.
//
// Storage failures on the read and write paths are contained here: Get
// reports a miss and Set returns the error instead of failing the caller.
// Every contained failure is logged and counted so that a store outage
// shows up as a rising storage error rate rather than as silent data loss.
package cache

import (
	"errors"
	"time"

	"github.com/leonardcser/wikicache/internal/logger"
	"github.com/leonardcser/wikicache/internal/metrics"
	"github.com/leonardcser/wikicache/internal/store"
)

type Options struct {
	// TTL is the maximum age of a servable record. Zero means DefaultTTL.
	TTL time.Duration
	// Now is the single time source for record timestamps and ages.
	Now func() time.Time
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Manager serves fresh records from a Store and evicts stale ones.
type Manager struct {
	store   store.Store
	policy  ExpiryPolicy
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewManager(s store.Store, opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:   s,
		policy:  NewExpiryPolicy(opts.TTL),
		now:     now,
		metrics: opts.Metrics,
	}
}

// TTL returns the effective time-to-live.
func (m *Manager) TTL() time.Duration { return m.policy.TTL }

// Get returns the cached value for key if present and fresh.
// A stale record is deleted before reporting the miss.
func (m *Manager) Get(key string) ([]byte, bool) {
	rec, err := m.store.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		m.metrics.Lookup("miss")
		return nil, false
	}
	if err != nil {
		logger.Warnf("cache get %q failed, treating as miss: %v", key, err)
		m.metrics.StorageError("get")
		m.metrics.Lookup("miss")
		return nil, false
	}
	now := m.now()
	if !m.policy.Fresh(rec.CreatedAt, now) {
		m.metrics.Lookup("stale")
		// Conditional on age so a Set racing this read is not evicted.
		if _, err := m.store.DeleteKeyCreatedBefore(key, m.policy.Cutoff(now)); err != nil {
			logger.Warnf("cache evict %q failed: %v", key, err)
			m.metrics.StorageError("delete")
		}
		return nil, false
	}
	m.metrics.Lookup("hit")
	return rec.Value, true
}

// Set stores value under key stamped with the current time.
func (m *Manager) Set(key string, value []byte) error {
	err := m.store.Upsert(store.Record{Key: key, Value: value, CreatedAt: m.now()})
	if err != nil {
		m.metrics.StorageError("set")
		return err
	}
	return nil
}

// Sweep deletes every record older than the TTL and reports how many were
// removed. The cutoff is fixed when the call starts.
func (m *Manager) Sweep() (int, error) {
	start := m.now()
	n, err := m.store.DeleteCreatedBefore(m.policy.Cutoff(start))
	if err != nil {
		logger.Errorf("cache sweep failed: %v", err)
		m.metrics.StorageError("sweep")
		return 0, err
	}
	m.metrics.Swept(n, m.now().Sub(start).Seconds())
	if n > 0 {
		logger.Infof("cache sweep removed %d expired records", n)
	}
	return n, nil
}
