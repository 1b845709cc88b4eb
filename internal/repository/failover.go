package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"studiodesk/internal/domain"

	"github.com/rs/zerolog"
)

const recheckInterval = time.Minute

// FailoverSlotLocker uses the primary locker while it is healthy and the
// fallback after an infrastructure error, retrying the primary once a minute.
type FailoverSlotLocker struct {
	primary   domain.SlotLocker
	fallback  domain.SlotLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSlotLocker(primary, fallback domain.SlotLocker, logger *zerolog.Logger) *FailoverSlotLocker {
	return &FailoverSlotLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSlotLocker) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recheckInterval
}

func (r *FailoverSlotLocker) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary slot locker failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverSlotLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if r.usePrimary() {
		token, err := r.primary.Acquire(ctx, key, ttl)
		if err == nil || errors.Is(err, domain.ErrLockHeld) {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary slot locker recovered")
			}
			return token, err
		}
		r.markDown(err)
	}

	return r.fallback.Acquire(ctx, key, ttl)
}

// Release hands the token to both lockers; only the one that issued it
// will match.
func (r *FailoverSlotLocker) Release(ctx context.Context, key, token string) error {
	var primaryErr error
	if !r.isDown.Load() {
		primaryErr = r.primary.Release(ctx, key, token)
		if primaryErr != nil {
			r.logger.Warn().Err(primaryErr).Str("key", key).Msg("Primary slot lock release failed")
		}
	}

	if err := r.fallback.Release(ctx, key, token); err != nil {
		return err
	}
	return primaryErr
}
