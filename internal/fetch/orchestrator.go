// Package fetch resolves keys through the cache, fetching and populating on
// a miss.
package fetch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/leonardcser/wikicache/internal/logger"
	"github.com/leonardcser/wikicache/internal/metrics"
)

const tracerName = "github.com/leonardcser/wikicache/internal/fetch"

var (
	ErrEmptyKey   = errors.New("fetch: empty key")
	ErrNilFetcher = errors.New("fetch: nil fetcher")
)

// Cache is the read/write half of the cache manager used by Resolve.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
}

type Options struct {
	// Coalesce lets concurrent misses on one key share a single fetch.
	// Callers are grouped by key alone: a waiter gets the result of the
	// leader's Fetcher even if it passed a different one.
	Coalesce bool
	// Tracer defaults to the global otel tracer provider.
	Tracer  trace.Tracer
	Metrics *metrics.Metrics
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	cache    Cache
	coalesce bool
	group    singleflight.Group
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

func New(c Cache, opts Options) *Orchestrator {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		cache:    c,
		coalesce: opts.Coalesce,
		tracer:   tracer,
		metrics:  opts.Metrics,
	}
}

// Resolve returns the cached value for key, or fetches it with f, caches it
// and returns it. A warm key costs one store read and no fetch. Fetch
// failures are returned as *FetchError; cache write-back failures are logged
// and never affect the result.
func (o *Orchestrator) Resolve(ctx context.Context, key string, f Fetcher) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if f == nil {
		return nil, ErrNilFetcher
	}
	ctx, span := o.tracer.Start(ctx, "fetch.Resolve", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if v, ok := o.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return v, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var (
		v   []byte
		err error
	)
	if o.coalesce {
		v, err = o.shared(ctx, key, f)
	} else {
		v, err = o.populate(ctx, key, f)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return v, nil
}

// shared runs populate once per key across concurrent callers. Each waiter
// honours its own ctx, and a waiter whose shared fetch died with the
// leader's ctx fetches again on its own.
func (o *Orchestrator) shared(ctx context.Context, key string, f Fetcher) ([]byte, error) {
	ch := o.group.DoChan(key, func() (any, error) {
		return o.populate(ctx, key, f)
	})
	select {
	case <-ctx.Done():
		return nil, &FetchError{Key: key, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			if isCtxErr(res.Err) && ctx.Err() == nil {
				return o.populate(ctx, key, f)
			}
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (o *Orchestrator) populate(ctx context.Context, key string, f Fetcher) ([]byte, error) {
	start := time.Now()
	v, err := o.fetch(ctx, key, f)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		o.metrics.Fetch("error", elapsed)
		logger.Warnf("fetch %s failed: %v", key, err)
		return nil, err
	}
	o.metrics.Fetch("ok", elapsed)

	if err := o.cache.Set(key, v); err != nil {
		o.metrics.WritebackFailure()
		logger.Warnf("cache write-back for %s failed, serving uncached: %v", key, err)
	}
	return v, nil
}

func (o *Orchestrator) fetch(ctx context.Context, key string, f Fetcher) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	v, err := f.Fetch(ctx, key)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &FetchError{Key: key, Err: err}
	}
	return v, nil
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
