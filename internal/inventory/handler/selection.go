package handler

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/traffic"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
)

// OverridePrefix marks gRPC metadata keys and HTTP headers that override
// the resolved selection, e.g. x-variant-algorithm: fast_path.
const OverridePrefix = "x-variant-"

var overrideKeys = []string{
	variant.KeyCacheMode,
	variant.KeyAlgorithm,
	variant.KeyTimeoutMs,
	variant.KeyRetries,
	variant.KeyWarmupMode,
	variant.KeyWarmupTTL,
}

// SelectionResolver builds the variant context of a request, asks the
// provider for a selection and applies caller overrides when allowed.
type SelectionResolver struct {
	provider       variant.Provider
	monitor        *traffic.Monitor
	allowOverrides bool
}

func NewSelectionResolver(provider variant.Provider, monitor *traffic.Monitor, allowOverrides bool) *SelectionResolver {
	return &SelectionResolver{provider: provider, monitor: monitor, allowOverrides: allowOverrides}
}

// Resolve reads overrides through get, which maps a lower-case header name
// to its value.
func (r *SelectionResolver) Resolve(ctx context.Context, cartSize int, get func(string) string) (variant.Selection, error) {
	sel, err := r.provider.Resolve(ctx, variant.Context{
		UserID:             auth.GetUserID(ctx),
		SessionID:          auth.GetSessionID(ctx),
		Hour:               time.Now().Hour(),
		ConcurrentRequests: r.monitor.InFlight(),
		CartSize:           cartSize,
		RequestRate:        r.monitor.RequestRate(),
	})
	if err != nil || !r.allowOverrides {
		return sel, err
	}

	overrides := make(map[string]string, len(overrideKeys))
	for _, k := range overrideKeys {
		if v := get(OverridePrefix + k); v != "" {
			overrides[k] = v
		}
	}
	return sel.WithOverrides(overrides)
}

func (r *SelectionResolver) RequestRate() int64 {
	return r.monitor.RequestRate()
}
