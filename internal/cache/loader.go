package cache

import (
	"context"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a shared load once it no longer follows any
// single caller's context.
const DefaultLoadTimeout = 60 * time.Second

// LoadFunc fetches the value for a key from upstream.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Loading is a string-keyed LRU that fills misses through a LoadFunc.
// Concurrent misses on one key share a single upstream load. Failed loads
// are not cached.
type Loading[V any] struct {
	name        string
	lru         *LRU[string, V]
	group       singleflight.Group
	loadTimeout time.Duration
}

type LoadingOption func(*loadingConfig)

type loadingConfig struct {
	loadTimeout time.Duration
}

// WithLoadTimeout overrides DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) LoadingOption {
	return func(c *loadingConfig) { c.loadTimeout = d }
}

func NewLoading[V any](name string, capacity int, ttl time.Duration, opts ...LoadingOption) *Loading[V] {
	cfg := loadingConfig{loadTimeout: DefaultLoadTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loadTimeout <= 0 {
		cfg.loadTimeout = DefaultLoadTimeout
	}
	return &Loading[V]{
		name:        name,
		lru:         NewLRU[string, V](name, capacity, ttl),
		loadTimeout: cfg.loadTimeout,
	}
}

// Get returns the cached value for key, loading it on a miss. cached
// reports whether the value came from the cache.
//
// The shared load keeps the first caller's context values but not its
// cancellation, so one caller going away does not fail the others. Each
// caller still stops waiting when its own ctx is done.
func (l *Loading[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (value V, cached bool, err error) {
	if v, ok := l.lru.Get(key); ok {
		return v, true, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(loadCtx, l.loadTimeout)
		defer cancel()

		v, err := load(lctx)
		if err != nil {
			metrics.CacheLoadsTotal.WithLabelValues(l.name, "error").Inc()
			return v, err
		}
		metrics.CacheLoadsTotal.WithLabelValues(l.name, "ok").Inc()
		l.lru.Put(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

// Invalidate drops key so the next Get loads again.
func (l *Loading[V]) Invalidate(key string) {
	l.lru.Delete(key)
}

func (l *Loading[V]) Len() int {
	return l.lru.Len()
}
