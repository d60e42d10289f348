package flows

import (
	"context"
	"time"
)

// HealthDeps captures health probe dependencies.
type HealthDeps struct {
	Cache CacheStore
	Now   func() time.Time
}

// RunHealth pings the cache and reports liveness with the probe latency.
func RunHealth(ctx context.Context, deps HealthDeps) (bool, time.Duration) {
	if deps.Cache == nil {
		return false, 0
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	start := now()
	alive := deps.Cache.Ping(ctx)
	return alive, now().Sub(start)
}
