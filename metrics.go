package authbridge

import (
	internalmetrics "github.com/authbridge/authbridge/internal/metrics"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// Rejection labels a failed operation by its reason code in
// [MetricsSnapshot].Rejections.
type Rejection = internalmetrics.Rejection

const (
	// MetricLoginSuccess counts issued token pairs.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricIdentityProviderError counts identity provider rejections and outages.
	MetricIdentityProviderError = internalmetrics.MetricIdentityProviderError
	// MetricVerifySuccess counts accepted Verify calls, rotated or not.
	MetricVerifySuccess = internalmetrics.MetricVerifySuccess
	// MetricVerifyRejected counts Verify calls that returned an error.
	MetricVerifyRejected = internalmetrics.MetricVerifyRejected
	// MetricVerifyCachedSuccessor counts expired tokens resolved through the grace cache.
	MetricVerifyCachedSuccessor = internalmetrics.MetricVerifyCachedSuccessor
	// MetricRevokedRejected counts tokens refused because they were tombstoned.
	MetricRevokedRejected = internalmetrics.MetricRevokedRejected
	// MetricRefreshSuccess counts access tokens returned by Refresh.
	MetricRefreshSuccess = internalmetrics.MetricRefreshSuccess
	// MetricRefreshFailure counts rejected Refresh calls.
	MetricRefreshFailure = internalmetrics.MetricRefreshFailure
	// MetricTokenRotated counts access tokens minted from a refresh token.
	MetricTokenRotated = internalmetrics.MetricTokenRotated
	// MetricLogout counts successful logouts, repeats included.
	MetricLogout = internalmetrics.MetricLogout
	// MetricTombstoneWritten counts invalidated- keys written by logout.
	MetricTombstoneWritten = internalmetrics.MetricTombstoneWritten
	// MetricCacheUnavailable counts requests failed closed on a cache error.
	MetricCacheUnavailable = internalmetrics.MetricCacheUnavailable
	// MetricVerifyLatency is the Verify latency histogram.
	MetricVerifyLatency = internalmetrics.MetricVerifyLatency
)

// Metrics is the gateway's counter set.
type Metrics = internalmetrics.Metrics

// NewMetrics returns a Metrics honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(cfg)
}
