package store

import (
	"errors"
	"fmt"
	"time"
)

// Record is one cached unit: an opaque value and the moment it was written.
type Record struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
}

// Store is a durable key -> Record mapping.
// Implementations must be safe for concurrent use by multiple goroutines and
// must apply Upsert and DeleteCreatedBefore atomically per key.
type Store interface {
	// Get returns the record for key, or ErrNotFound.
	Get(key string) (Record, error)
	// Upsert writes rec, replacing any record with the same key.
	Upsert(rec Record) error
	// Delete removes key and reports how many records were removed (0 or 1).
	Delete(key string) (int, error)
	// DeleteCreatedBefore removes every record whose CreatedAt is strictly
	// before cutoff and reports how many were removed.
	DeleteCreatedBefore(cutoff time.Time) (int, error)
	// DeleteKeyCreatedBefore removes key only if its CreatedAt is strictly
	// before cutoff, so a record rewritten since it was read survives.
	DeleteKeyCreatedBefore(key string, cutoff time.Time) (int, error)
	// Close releases the backend.
	Close() error
}

// ErrNotFound marks an absent key. It is never wrapped in a StorageError.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is the cause of StorageErrors returned after Close.
var ErrClosed = errors.New("store: closed")

// StorageError reports a failed backend operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}
