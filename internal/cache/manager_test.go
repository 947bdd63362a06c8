package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/wikicache/internal/metrics"
	"github.com/leonardcser/wikicache/internal/store"
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// failingStore fails every operation.
type failingStore struct{}

var errDown = errors.New("connection refused")

func (failingStore) Get(key string) (store.Record, error) {
	return store.Record{}, &store.StorageError{Op: "get", Key: key, Err: errDown}
}
func (failingStore) Upsert(rec store.Record) error {
	return &store.StorageError{Op: "upsert", Key: rec.Key, Err: errDown}
}
func (failingStore) Delete(key string) (int, error) {
	return 0, &store.StorageError{Op: "delete", Key: key, Err: errDown}
}
func (failingStore) DeleteCreatedBefore(time.Time) (int, error) {
	return 0, &store.StorageError{Op: "delete_before", Err: errDown}
}
func (failingStore) DeleteKeyCreatedBefore(key string, _ time.Time) (int, error) {
	return 0, &store.StorageError{Op: "delete_before", Key: key, Err: errDown}
}
func (failingStore) Close() error { return nil }

// noDeleteStore serves reads from Memory but fails deletes.
type noDeleteStore struct{ *store.Memory }

func (noDeleteStore) DeleteKeyCreatedBefore(key string, _ time.Time) (int, error) {
	return 0, &store.StorageError{Op: "delete", Key: key, Err: errDown}
}

func seed(t *testing.T, s store.Store, key string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, s.Upsert(store.Record{Key: key, Value: []byte("v-" + key), CreatedAt: createdAt}))
}

func TestManager_Freshness(t *testing.T) {
	clk := newClock()
	s := store.NewMemory()
	m := NewManager(s, Options{TTL: 24 * time.Hour, Now: clk.Now})

	seed(t, s, "fresh", clk.Now().Add(-23*time.Hour))
	seed(t, s, "stale", clk.Now().Add(-25*time.Hour))

	v, ok := m.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, []byte("v-fresh"), v)

	_, ok = m.Get("stale")
	assert.False(t, ok)
	_, err := s.Get("stale")
	assert.ErrorIs(t, err, store.ErrNotFound, "stale record must be evicted on read")
}

func TestManager_BoundaryIsFresh(t *testing.T) {
	clk := newClock()
	s := store.NewMemory()
	m := NewManager(s, Options{TTL: time.Hour, Now: clk.Now})

	require.NoError(t, m.Set("k", []byte("v")))
	clk.Advance(time.Hour)
	_, ok := m.Get("k")
	assert.True(t, ok, "age == ttl is fresh")

	clk.Advance(time.Nanosecond)
	_, ok = m.Get("k")
	assert.False(t, ok)
}

func TestManager_MissOnAbsent(t *testing.T) {
	m := NewManager(store.NewMemory(), Options{})
	v, ok := m.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, DefaultTTL, m.TTL())
}

func TestManager_SetReplaces(t *testing.T) {
	clk := newClock()
	s := store.NewMemory()
	m := NewManager(s, Options{TTL: time.Hour, Now: clk.Now})

	require.NoError(t, m.Set("k", []byte("v1")))
	clk.Advance(10 * time.Minute)
	second := clk.Now()
	require.NoError(t, m.Set("k", []byte("v2")))

	assert.Equal(t, 1, s.Len())
	rec, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), rec.Value)
	assert.False(t, rec.CreatedAt.Before(second))
}

func TestManager_Sweep(t *testing.T) {
	clk := newClock()
	s := store.NewMemory()
	ttl := time.Hour
	m := NewManager(s, Options{TTL: ttl, Now: clk.Now})

	now := clk.Now()
	seed(t, s, "younger", now.Add(-(ttl - time.Second)))
	seed(t, s, "exact", now.Add(-ttl))
	seed(t, s, "older", now.Add(-(ttl + time.Second)))

	n, err := m.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.Len())
	_, err = s.Get("older")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = m.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestManager_ConcurrentSweeps(t *testing.T) {
	clk := newClock()
	s := store.NewMemory()
	m := NewManager(s, Options{TTL: time.Hour, Now: clk.Now})
	for _, k := range []string{"a", "b", "c", "d"} {
		seed(t, s, k, clk.Now().Add(-2*time.Hour))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := m.Sweep()
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, total)
	assert.Equal(t, 0, s.Len())
}

func TestManager_StorageFailureDegrades(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	m := NewManager(failingStore{}, Options{Metrics: met})

	v, ok := m.Get("k")
	assert.False(t, ok)
	assert.Nil(t, v)

	err := m.Set("k", []byte("v"))
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))

	n, err := m.Sweep()
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, errDown)

	assert.Equal(t, 1.0, testutil.ToFloat64(met.StorageErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.StorageErrors.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.StorageErrors.WithLabelValues("sweep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.Lookups.WithLabelValues("miss")))
}

func TestManager_EvictFailureStillMisses(t *testing.T) {
	clk := newClock()
	mem := store.NewMemory()
	m := NewManager(noDeleteStore{mem}, Options{TTL: time.Hour, Now: clk.Now})
	seed(t, mem, "k", clk.Now().Add(-2*time.Hour))

	_, ok := m.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, mem.Len(), "record stays until swept")
}

func TestManager_LookupMetrics(t *testing.T) {
	clk := newClock()
	met := metrics.New(prometheus.NewRegistry())
	s := store.NewMemory()
	m := NewManager(s, Options{TTL: time.Hour, Now: clk.Now, Metrics: met})

	require.NoError(t, m.Set("k", []byte("v")))
	m.Get("k")
	m.Get("absent")
	clk.Advance(2 * time.Hour)
	m.Get("k")
	seed(t, s, "old", clk.Now().Add(-3*time.Hour))
	_, err := m.Sweep()
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(met.Lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.Lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.Lookups.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.SweepRemoved))
}

// rewriteAfterGet upserts a fresh record right after Get returns, as a
// concurrent Set landing between the stale read and the eviction would.
type rewriteAfterGet struct {
	*store.Memory
	at time.Time
}

func (s rewriteAfterGet) Get(key string) (store.Record, error) {
	rec, err := s.Memory.Get(key)
	if err == nil {
		_ = s.Memory.Upsert(store.Record{Key: key, Value: []byte("fresh"), CreatedAt: s.at})
	}
	return rec, err
}

func TestManager_EvictKeepsConcurrentSet(t *testing.T) {
	clk := newClock()
	mem := store.NewMemory()
	m := NewManager(rewriteAfterGet{Memory: mem, at: clk.Now()}, Options{TTL: time.Hour, Now: clk.Now})
	seed(t, mem, "k", clk.Now().Add(-2*time.Hour))

	_, ok := m.Get("k")
	assert.False(t, ok)

	rec, err := mem.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), rec.Value)
}
