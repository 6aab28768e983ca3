package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/chance"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"go.uber.org/zap"
)

type CoherencyConfig struct {
	// StaleReadProbability is the share of optimized-mode hits flagged as
	// not revalidated against the source of truth.
	StaleReadProbability float64
	// DroppedWriteProbability is the share of optimized-mode sets that are
	// skipped while still reporting success.
	DroppedWriteProbability float64
}

// Layer sits in front of a Store. Errors from the store never reach the
// caller: a failed read is a miss, a failed write is logged.
type Layer struct {
	store  Store
	cfg    CoherencyConfig
	dice   *chance.Source
	events *telemetry.Recorder
	logger logger.ZapLogger
}

func NewLayer(store Store, cfg CoherencyConfig, dice *chance.Source, events *telemetry.Recorder, log logger.ZapLogger) *Layer {
	return &Layer{
		store:  store,
		cfg:    cfg,
		dice:   dice,
		events: events,
		logger: log,
	}
}

// Lookup is the result of Layer.Get.
type Lookup struct {
	Value []byte
	Hit   bool
	// PossiblyStale is informational only; Value is still usable.
	PossiblyStale bool
}

func (l *Layer) Get(ctx context.Context, key string, mode variant.CacheMode) Lookup {
	val, err := l.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			l.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return Lookup{}
	}

	res := Lookup{Value: val, Hit: true}
	if mode == variant.CacheModeOptimized && l.dice.Roll(l.cfg.StaleReadProbability) {
		res.PossiblyStale = true
		l.events.StaleRead(ctx, key)
		l.logger.Debug("serving possibly stale cache entry", zap.String("key", key))
	}
	return res
}

// Set writes value under key. Under the optimized mode the write may be
// skipped; callers cannot tell.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration, mode variant.CacheMode) {
	if mode == variant.CacheModeOptimized && l.dice.Roll(l.cfg.DroppedWriteProbability) {
		l.events.DroppedWrite(ctx, key)
		l.logger.Debug("dropping cache write", zap.String("key", key))
		return
	}
	if err := l.store.Set(ctx, key, value, ttl); err != nil {
		l.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (l *Layer) Invalidate(ctx context.Context, key string) {
	if err := l.store.Del(ctx, key); err != nil {
		l.logger.Error("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func (l *Layer) InvalidatePattern(ctx context.Context, pattern string) {
	if err := l.store.DelPattern(ctx, pattern); err != nil {
		l.logger.Error("cache pattern invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
