package internaldefs

import (
	authkit "github.com/academyshow/authkit"
)

// CounterDef maps a core metric ID to its exported counter name.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef maps a core metric ID to its exported histogram name.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Order is the exposition
// order for text-format exporters.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful login attempts."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed login attempts."},
	{ID: authkit.MetricLoginRateLimited, Name: "authkit_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authkit.MetricRefreshFailure, Name: "authkit_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authkit.MetricRefreshReuseDetected, Name: "authkit_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authkit.MetricRefreshRateLimited, Name: "authkit_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authkit.MetricRefreshRevoked, Name: "authkit_refresh_revoked_total", Help: "Refresh attempts against a revoked session."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Logout operations."},
	{ID: authkit.MetricTokenPairIssued, Name: "authkit_token_pair_issued_total", Help: "Issued access/refresh token pairs."},
	{ID: authkit.MetricFederatedLoginSuccess, Name: "authkit_federated_login_success_total", Help: "Successful federated logins."},
	{ID: authkit.MetricFederatedLoginFailure, Name: "authkit_federated_login_failure_total", Help: "Failed federated logins."},
	{ID: authkit.MetricPrincipalCreated, Name: "authkit_principal_created_total", Help: "Created principals."},
	{ID: authkit.MetricSignUpSuccess, Name: "authkit_sign_up_success_total", Help: "Successful sign-ups."},
	{ID: authkit.MetricSignUpDuplicate, Name: "authkit_sign_up_duplicate_total", Help: "Sign-up attempts rejected as duplicate."},
	{ID: authkit.MetricSignUpFailure, Name: "authkit_sign_up_failure_total", Help: "Failed sign-up attempts."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricVerifyLatency, Name: "authkit_verify_latency_seconds", Help: "Access token verification latency."},
}

// HistogramBounds are the upper bounds of the core latency buckets in
// seconds, with +Inf last.
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

// HistogramBoundSuffix maps each bound to a metric-name-safe suffix
// for backends without native histogram buckets.
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

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count so exporters never index out of range.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms require.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
