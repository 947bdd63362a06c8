package fetch

import (
	"context"
	"fmt"
)

// Fetcher performs the expensive retrieval the cache exists to avoid.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }

// FetchError reports a failed remote fetch. It is never cached.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Key, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }
