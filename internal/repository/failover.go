package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"torch/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverStore routes to the primary store and switches to the fallback on error,
// probing the primary again once a minute.
type FailoverStore struct {
	primary   domain.KVStore
	fallback  domain.KVStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback domain.KVStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary store failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// shouldProbe reports whether the primary is down long enough to be retried.
func (r *FailoverStore) shouldProbe() bool {
	if !r.isDown.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) <= time.Minute {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

func (r *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !r.isDown.Load() {
		val, err := r.primary.Get(ctx, key)
		if err == nil {
			return val, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		val, err := r.primary.Get(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary store recovered")
			return val, nil
		}
	}

	return r.fallback.Get(ctx, key)
}

func (r *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Set(ctx, key, value, ttl)
}

func (r *FailoverStore) Delete(ctx context.Context, key string) error {
	if !r.isDown.Load() {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Delete(ctx, key)
}

func (r *FailoverStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
