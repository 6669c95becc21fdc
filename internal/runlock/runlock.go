// Package runlock keeps two batch runs from syncing at the same time.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// DefaultKey is the lock key shared by every syncbridge process.
const DefaultKey = "syncbridge:run"

// ErrHeld is returned when another run holds the lock.
var ErrHeld = errors.New("another sync run holds the lock")

// Locker obtains the run lock from Redis.
type Locker struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a locker on top of a Redis client.
func New(rdb redislock.RedisClient, key string, ttl time.Duration, logger *slog.Logger) *Locker {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: redislock.New(rdb), key: key, ttl: ttl, logger: logger}
}

// Lease is a held run lock. It is refreshed in the background at half the
// TTL until Release is called.
type Lease struct {
	lock   *redislock.Lock
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Acquire obtains the lock without waiting. It returns ErrHeld if another
// process owns it.
func (l *Locker) Acquire(ctx context.Context) (*Lease, error) {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain run lock %s: %w", l.key, err)
	}

	lease := &Lease{
		lock:   lock,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: l.logger,
	}
	go lease.refresh(l.ttl)
	return lease, nil
}

func (s *Lease) refresh(ttl time.Duration) {
	defer close(s.done)

	interval := ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := s.lock.Refresh(ctx, ttl, nil)
			cancel()
			if err != nil {
				s.logger.Warn("failed to refresh run lock",
					slog.String("key", s.lock.Key()),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// Release stops refreshing and deletes the lock. Calling it twice is safe.
func (s *Lease) Release(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		err = s.lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			err = nil
		}
	})
	return err
}
