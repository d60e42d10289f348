package internaldefs

import (
	"github.com/authbridge/authbridge"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authbridge.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authbridge.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authbridge.MetricLoginSuccess, Name: "authbridge_login_success_total", Help: "Issued access and refresh token pairs."},
	{ID: authbridge.MetricLoginFailure, Name: "authbridge_login_failure_total", Help: "Rejected login attempts."},
	{ID: authbridge.MetricIdentityProviderError, Name: "authbridge_identity_provider_error_total", Help: "Identity provider rejections and outages."},
	{ID: authbridge.MetricVerifySuccess, Name: "authbridge_verify_success_total", Help: "Authenticated verify calls."},
	{ID: authbridge.MetricVerifyRejected, Name: "authbridge_verify_rejected_total", Help: "Rejected verify calls."},
	{ID: authbridge.MetricVerifyCachedSuccessor, Name: "authbridge_verify_cached_successor_total", Help: "Expired access tokens resolved through the grace cache."},
	{ID: authbridge.MetricRevokedRejected, Name: "authbridge_revoked_rejected_total", Help: "Requests rejected because the token was revoked."},
	{ID: authbridge.MetricRefreshSuccess, Name: "authbridge_refresh_success_total", Help: "Successful refresh calls."},
	{ID: authbridge.MetricRefreshFailure, Name: "authbridge_refresh_failure_total", Help: "Failed refresh calls."},
	{ID: authbridge.MetricTokenRotated, Name: "authbridge_token_rotated_total", Help: "Access tokens minted from a refresh token."},
	{ID: authbridge.MetricLogout, Name: "authbridge_logout_total", Help: "Successful logouts."},
	{ID: authbridge.MetricTombstoneWritten, Name: "authbridge_tombstone_written_total", Help: "Revocation tombstones written."},
	{ID: authbridge.MetricCacheUnavailable, Name: "authbridge_cache_unavailable_total", Help: "Requests failed closed on a cache error."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: authbridge.MetricVerifyLatency, Name: "authbridge_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for exporters without labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
