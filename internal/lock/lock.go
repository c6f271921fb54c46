// Package lock keeps reconciliation runs, resets and repairs from
// overlapping. Redis is used when configured so that API and worker
// processes share the lock; otherwise the lock is local to the process.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const keyPrefix = "recon:lock:"

// Local is an in-process lock. The zero value is ready to use.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *Local) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, models.ErrRunInProgress
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Redis is a lock shared through Redis. The lock is refreshed every half TTL
// while held, so it outlives a slow run but not a crashed process.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedis(rdb redislock.RedisClient, ttl time.Duration, logger *logrus.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{client: redislock.New(rdb), ttl: ttl, logger: logger}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	l, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, models.ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := l.Refresh(context.Background(), r.ttl, nil); err != nil {
					r.logger.WithError(err).WithField("key", key).Error("failed to refresh lock")
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.logger.WithError(err).WithField("key", key).Error("failed to release lock")
			}
		})
	}, nil
}

// Connect opens a Redis client and checks it answers.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Address, err)
	}
	return rdb, nil
}

// Locker is satisfied by Local and Redis.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// FromConfig returns a Redis lock when an address is configured and a local
// lock otherwise. The returned close function releases the Redis client.
func FromConfig(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) (Locker, func(), error) {
	if cfg.Address == "" {
		logger.Info("redis not configured, using process-local run lock")
		return &Local{}, func() {}, nil
	}
	rdb, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("addr", cfg.Address).Info("connected to redis")
	return NewRedis(rdb, cfg.LockTTL, logger), func() { rdb.Close() }, nil
}
