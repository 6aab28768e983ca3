package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker guards the per-product critical section of the lock-based
// algorithm. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, productID string) (func(), error)
}

// LocalLocker serializes callers inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(_ context.Context, productID string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[productID]
	if !ok {
		k = &keyLock{}
		l.locks[productID] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.locks, productID)
		}
		l.mu.Unlock()
	}, nil
}

type lockClient interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

type RedisLockerConfig struct {
	TTL        time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// RedisLocker holds a Redis key per product for the length of the
// critical section, so replicas of the service serialize too.
type RedisLocker struct {
	client lockClient
	cfg    RedisLockerConfig
	logger logger.ZapLogger
}

func NewRedisLocker(client lockClient, cfg RedisLockerConfig, log logger.ZapLogger) *RedisLocker {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &RedisLocker{client: client, cfg: cfg, logger: log}
}

func (l *RedisLocker) Lock(ctx context.Context, productID string) (func(), error) {
	lockKey := fmt.Sprintf("lock:inventory:%s", productID)
	lockValue := uuid.New().String()

	acquired := false
	for i := 0; i < l.cfg.Attempts; i++ {
		ok, err := l.client.AcquireLock(ctx, lockKey, lockValue, l.cfg.TTL)
		if err != nil {
			l.logger.Error("failed to acquire lock redis error", zap.String("key", lockKey), zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		if i < l.cfg.Attempts-1 {
			time.Sleep(l.cfg.RetryDelay)
		}
	}

	if !acquired {
		return nil, fmt.Errorf("product %s: %w", productID, inventory.ErrLockUnavailable)
	}

	return func() {
		if err := l.client.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue); err != nil {
			l.logger.Error("failed to release lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}
