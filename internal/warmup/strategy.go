package warmup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/cache"
	"github.com/fekuna/omnipos-inventory-service/internal/chance"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRetentionFactor  = 4
	defaultMaxRegistrations = 1024
	refreshTimeout          = 10 * time.Second
)

type Config struct {
	// HighRateThreshold is the request rate at which background entries past
	// their TTL may still be served.
	HighRateThreshold int64
	// StaleServeProbability is the chance an expired entry is served under
	// high request rate instead of being reloaded inline.
	StaleServeProbability float64
	// RetentionFactor multiplies the warmup TTL to get the store TTL of
	// background entries. Expired entries must outlive the TTL to be served.
	RetentionFactor int
	// MaxRegistrations caps the background keys kept warm by RefreshAll.
	// The least recently read key is dropped to make room.
	MaxRegistrations int
}

// Loader computes the response for a key from the source of truth.
type Loader func(ctx context.Context) ([]byte, error)

type Result struct {
	Value     []byte
	FromCache bool
	Stale     bool
}

type entry struct {
	Payload     []byte    `json:"payload"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// registration is a background key kept warm by RefreshAll. It is dropped
// once it has not been read for storeTTL.
type registration struct {
	storeTTL time.Duration
	load     Loader
	lastRead time.Time
}

// Strategy decides whether a list read is answered from a precomputed
// response or from the source of truth.
type Strategy struct {
	store  cache.Store
	cfg    Config
	dice   *chance.Source
	events *telemetry.Recorder
	logger logger.ZapLogger
	now    func() time.Time

	sf         singleflight.Group
	mu         sync.Mutex
	registered map[string]registration
}

func NewStrategy(store cache.Store, cfg Config, dice *chance.Source, events *telemetry.Recorder, log logger.ZapLogger) *Strategy {
	if cfg.RetentionFactor <= 0 {
		cfg.RetentionFactor = defaultRetentionFactor
	}
	if cfg.MaxRegistrations <= 0 {
		cfg.MaxRegistrations = defaultMaxRegistrations
	}
	return &Strategy{
		store:      store,
		cfg:        cfg,
		dice:       dice,
		events:     events,
		logger:     log,
		now:        time.Now,
		registered: make(map[string]registration),
	}
}

// Read answers key according to sel's warmup mode. A warmup TTL of zero
// bypasses the cache.
func (s *Strategy) Read(ctx context.Context, key string, sel variant.Selection, requestRate int64, load Loader) (Result, error) {
	ttl := sel.WarmupTTL()
	if ttl <= 0 {
		v, err := load(ctx)
		return Result{Value: v}, err
	}

	switch sel.WarmupMode {
	case variant.WarmupBackground:
		return s.readBackground(ctx, key, ttl, requestRate, load)
	default:
		return s.readOnDemand(ctx, key, ttl, load)
	}
}

func (s *Strategy) readOnDemand(ctx context.Context, key string, ttl time.Duration, load Loader) (Result, error) {
	if e, ok := s.lookup(ctx, key); ok {
		s.events.WarmupServe(ctx, string(variant.WarmupOnDemand), false)
		return Result{Value: e.Payload, FromCache: true}, nil
	}

	v, err := s.refresh(ctx, key, ttl, load)
	return Result{Value: v}, err
}

func (s *Strategy) retention(ttl time.Duration) time.Duration {
	return ttl * time.Duration(s.cfg.RetentionFactor)
}

func (s *Strategy) readBackground(ctx context.Context, key string, ttl time.Duration, requestRate int64, load Loader) (Result, error) {
	s.register(key, s.retention(ttl), load)

	if e, ok := s.lookup(ctx, key); ok {
		if s.now().Sub(e.RefreshedAt) < ttl {
			s.events.WarmupServe(ctx, string(variant.WarmupBackground), false)
			return Result{Value: e.Payload, FromCache: true}, nil
		}
		if requestRate >= s.cfg.HighRateThreshold && s.dice.Roll(s.cfg.StaleServeProbability) {
			s.refreshAsync(ctx, key, s.retention(ttl), load)
			s.events.WarmupServe(ctx, string(variant.WarmupBackground), true)
			s.logger.Debug("serving expired warmup entry under high request rate",
				zap.String("key", key), zap.Int64("request_rate", requestRate))
			return Result{Value: e.Payload, FromCache: true, Stale: true}, nil
		}
	}

	v, err := s.refresh(ctx, key, s.retention(ttl), load)
	return Result{Value: v}, err
}

func (s *Strategy) lookup(ctx context.Context, key string) (entry, bool) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("warmup cache get failed", zap.String("key", key), zap.Error(err))
		}
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.logger.Warn("discarding undecodable warmup entry", zap.String("key", key), zap.Error(err))
		return entry{}, false
	}
	return e, true
}

// refresh loads key once per concurrent burst and stores the result for
// storeTTL.
func (s *Strategy) refresh(ctx context.Context, key string, storeTTL time.Duration, load Loader) ([]byte, error) {
	v, err, _ := s.sf.Do(key, func() (any, error) {
		payload, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.put(ctx, key, payload, storeTTL)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Strategy) put(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	raw, err := json.Marshal(entry{Payload: payload, RefreshedAt: s.now()})
	if err != nil {
		s.logger.Error("failed to encode warmup entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Error("warmup cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Strategy) refreshAsync(ctx context.Context, key string, storeTTL time.Duration, load Loader) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		if _, err := s.refresh(ctx, key, storeTTL, load); err != nil {
			s.logger.Warn("background warmup refresh failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

func (s *Strategy) register(key string, storeTTL time.Duration, load Loader) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registered[key]; !ok && len(s.registered) >= s.cfg.MaxRegistrations {
		s.evictOldestLocked()
	}
	s.registered[key] = registration{storeTTL: storeTTL, load: load, lastRead: s.now()}
}

func (s *Strategy) evictOldestLocked() {
	var oldest string
	var at time.Time
	for k, r := range s.registered {
		if oldest == "" || r.lastRead.Before(at) {
			oldest, at = k, r.lastRead
		}
	}
	delete(s.registered, oldest)
	s.logger.Debug("warmup registrations full, dropping least recently read key", zap.String("key", oldest))
}

// Registered reports how many background keys RefreshAll keeps warm.
func (s *Strategy) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registered)
}

// Invalidate drops every warmup entry matching pattern.
func (s *Strategy) Invalidate(ctx context.Context, pattern string) {
	if err := s.store.DelPattern(ctx, pattern); err != nil {
		s.logger.Error("warmup invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

// RefreshAll reloads every key read in background mode within its store
// TTL. Keys idle for longer are forgotten and left to expire.
func (s *Strategy) RefreshAll(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	regs := make(map[string]registration, len(s.registered))
	for k, r := range s.registered {
		if now.Sub(r.lastRead) > r.storeTTL {
			delete(s.registered, k)
			continue
		}
		regs[k] = r
	}
	s.mu.Unlock()

	for key, r := range regs {
		if _, err := s.refresh(ctx, key, r.storeTTL, r.load); err != nil {
			s.logger.Warn("warmup refresh failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Run keeps background entries warm until ctx is done.
func (s *Strategy) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}
