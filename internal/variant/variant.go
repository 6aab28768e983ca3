// Package variant describes the per-request behavior selection: which
// reservation algorithm runs, how coherent the cache must be, how long the
// caller waits and how list reads are warmed. A selection is resolved once
// per request and passed down explicitly.
package variant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSelection = errors.New("invalid variant selection")

type CacheMode string

const (
	CacheModeStandard  CacheMode = "standard"
	CacheModeOptimized CacheMode = "optimized"
)

type Algorithm string

const (
	AlgorithmLockBased Algorithm = "lock_based"
	AlgorithmFastPath  Algorithm = "fast_path"
)

type WarmupMode string

const (
	WarmupOnDemand   WarmupMode = "on_demand"
	WarmupBackground WarmupMode = "background"
)

// normalize folds "lockBased", "lock-based" and "LOCK_BASED" into "lockbased".
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

func ParseCacheMode(s string) (CacheMode, error) {
	switch normalize(s) {
	case "standard":
		return CacheModeStandard, nil
	case "optimized":
		return CacheModeOptimized, nil
	}
	return "", fmt.Errorf("%w: cache mode %q", ErrInvalidSelection, s)
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch normalize(s) {
	case "lockbased":
		return AlgorithmLockBased, nil
	case "fastpath":
		return AlgorithmFastPath, nil
	}
	return "", fmt.Errorf("%w: algorithm %q", ErrInvalidSelection, s)
}

func ParseWarmupMode(s string) (WarmupMode, error) {
	switch normalize(s) {
	case "ondemand":
		return WarmupOnDemand, nil
	case "background":
		return WarmupBackground, nil
	}
	return "", fmt.Errorf("%w: warmup mode %q", ErrInvalidSelection, s)
}

// Selection is the resolved set of behaviors for one request.
type Selection struct {
	CacheMode        CacheMode  `json:"cache_mode"`
	Algorithm        Algorithm  `json:"algorithm"`
	TimeoutMs        int        `json:"timeout_ms"`
	Retries          int        `json:"retries"`
	WarmupMode       WarmupMode `json:"warmup_mode"`
	WarmupTTLSeconds int        `json:"warmup_ttl_seconds"`
}

func (s Selection) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

func (s Selection) WarmupTTL() time.Duration {
	return time.Duration(s.WarmupTTLSeconds) * time.Second
}

func (s Selection) Validate() error {
	if _, err := ParseCacheMode(string(s.CacheMode)); err != nil {
		return err
	}
	if _, err := ParseAlgorithm(string(s.Algorithm)); err != nil {
		return err
	}
	if _, err := ParseWarmupMode(string(s.WarmupMode)); err != nil {
		return err
	}
	if s.TimeoutMs < 0 || s.Retries < 0 || s.WarmupTTLSeconds < 0 {
		return fmt.Errorf("%w: negative timeout, retries or ttl", ErrInvalidSelection)
	}
	return nil
}

// Override keys understood by WithOverrides. Transports map their headers
// or metadata onto these.
const (
	KeyCacheMode  = "cache-mode"
	KeyAlgorithm  = "algorithm"
	KeyTimeoutMs  = "timeout-ms"
	KeyRetries    = "retries"
	KeyWarmupMode = "warmup-mode"
	KeyWarmupTTL  = "warmup-ttl-seconds"
)

// WithOverrides returns a copy of s with caller supplied values applied.
// Empty values are ignored.
func (s Selection) WithOverrides(overrides map[string]string) (Selection, error) {
	out := s
	for k, raw := range overrides {
		if raw == "" {
			continue
		}
		var err error
		switch k {
		case KeyCacheMode:
			out.CacheMode, err = ParseCacheMode(raw)
		case KeyAlgorithm:
			out.Algorithm, err = ParseAlgorithm(raw)
		case KeyWarmupMode:
			out.WarmupMode, err = ParseWarmupMode(raw)
		case KeyTimeoutMs:
			out.TimeoutMs, err = parseNonNegative(k, raw)
		case KeyRetries:
			out.Retries, err = parseNonNegative(k, raw)
		case KeyWarmupTTL:
			out.WarmupTTLSeconds, err = parseNonNegative(k, raw)
		}
		if err != nil {
			return s, err
		}
	}
	return out, nil
}

func parseNonNegative(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidSelection, key, raw)
	}
	return n, nil
}

// Context is what a provider sees when choosing a selection.
type Context struct {
	UserID             string
	SessionID          string
	Hour               int
	ConcurrentRequests int64
	CartSize           int
	RequestRate        int64
}

// Provider chooses the selection for a request. The inventory core never
// inspects Context itself.
type Provider interface {
	Resolve(ctx context.Context, vc Context) (Selection, error)
}

// StaticProvider serves the same selection to every request.
type StaticProvider struct {
	Default Selection
}

func NewStaticProvider(def Selection) (*StaticProvider, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{Default: def}, nil
}

func (p *StaticProvider) Resolve(_ context.Context, _ Context) (Selection, error) {
	return p.Default, nil
}
