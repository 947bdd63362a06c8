package store

import (
	"encoding/binary"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a Store persisted in a single bbolt file.
// bbolt serializes write transactions, which gives Upsert and
// DeleteCreatedBefore their per-key atomicity.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

type BoltOptions struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

const headerLen = 8

var errCorrupt = errors.New("corrupt record")

// OpenBolt initializes or opens a Bolt store at the given path.
func OpenBolt(path string, opts BoltOptions) (*Bolt, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, storageErr("open", "", err)
	}
	bucket := []byte("cache")
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, storageErr("open", "", err)
	}
	return &Bolt{db: db, bucket: bucket}, nil
}

// Close closes the underlying database.
func (s *Bolt) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return storageErr("close", "", s.db.Close())
}

// Layout: 8 bytes big endian created_at (unix nanos) || raw value
func encodeRecord(rec Record) []byte {
	buf := make([]byte, headerLen+len(rec.Value))
	binary.BigEndian.PutUint64(buf[:headerLen], uint64(rec.CreatedAt.UnixNano()))
	copy(buf[headerLen:], rec.Value)
	return buf
}

func createdAt(v []byte) (int64, error) {
	if len(v) < headerLen {
		return 0, errCorrupt
	}
	return int64(binary.BigEndian.Uint64(v[:headerLen])), nil
}

func (s *Bolt) Get(key string) (Record, error) {
	var rec Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		ts, err := createdAt(v)
		if err != nil {
			return err
		}
		found = true
		rec = Record{
			Key:       key,
			Value:     append([]byte(nil), v[headerLen:]...),
			CreatedAt: time.Unix(0, ts),
		}
		return nil
	})
	if err != nil {
		return Record{}, storageErr("get", key, err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *Bolt) Upsert(rec Record) error {
	buf := encodeRecord(rec)
	return storageErr("upsert", rec.Key, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(rec.Key), buf)
	}))
}

func (s *Bolt) Delete(key string) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get([]byte(key)) == nil {
			return nil
		}
		n = 1
		return b.Delete([]byte(key))
	})
	if err != nil {
		return 0, storageErr("delete", key, err)
	}
	return n, nil
}

// DeleteCreatedBefore scans the bucket inside one write transaction.
// Keys are collected first because deleting under a live cursor skips entries.
func (s *Bolt) DeleteCreatedBefore(cutoff time.Time) (int, error) {
	limit := cutoff.UnixNano()
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			ts, err := createdAt(v)
			if err != nil || ts < limit {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, storageErr("delete_before", "", err)
	}
	return n, nil
}

func (s *Bolt) DeleteKeyCreatedBefore(key string, cutoff time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		if ts, err := createdAt(v); err == nil && ts >= cutoff.UnixNano() {
			return nil
		}
		n = 1
		return b.Delete([]byte(key))
	})
	if err != nil {
		return 0, storageErr("delete_before", key, err)
	}
	return n, nil
}

var _ Store = (*Bolt)(nil)
