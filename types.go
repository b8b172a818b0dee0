package authkit

import (
	"context"
	"io"

	internalaudit "github.com/academyshow/authkit/internal/audit"
	internalmetrics "github.com/academyshow/authkit/internal/metrics"
)

// PrincipalStatus is the lifecycle state of an account.
type PrincipalStatus uint8

const (
	// PrincipalActive accounts may authenticate.
	PrincipalActive PrincipalStatus = iota
	// PrincipalDeleted accounts are soft-deleted: the record stays
	// referable by historical data but every authentication path fails
	// closed.
	PrincipalDeleted
)

// PrincipalRecord is the account record returned by [PrincipalProvider].
// PasswordHash is a PHC-format argon2id string; it is empty for
// federated-only accounts, which can never pass a password login.
type PrincipalRecord struct {
	PrincipalID  string
	Username     string
	Roles        []string
	PasswordHash string
	Status       PrincipalStatus
}

// CreatePrincipalInput is the record handed to
// [PrincipalProvider.CreatePrincipal]. Provider and Subject are set
// only for federated sign-ins and identify the external account the
// new principal is linked to.
type CreatePrincipalInput struct {
	Username     string
	PasswordHash string
	Roles        []string
	Provider     string
	Subject      string
}

// PrincipalProvider is the interface callers implement to integrate
// their user database. Lookup methods return [ErrPrincipalNotFound]
// when no record matches; CreatePrincipal returns [ErrUsernameTaken]
// on a username conflict.
type PrincipalProvider interface {
	GetPrincipalByUsername(ctx context.Context, username string) (PrincipalRecord, error)
	GetPrincipalByID(ctx context.Context, principalID string) (PrincipalRecord, error)
	GetPrincipalByExternalIdentity(ctx context.Context, provider, subject string) (PrincipalRecord, error)
	CreatePrincipal(ctx context.Context, input CreatePrincipalInput) (PrincipalRecord, error)
	UpdatePasswordHash(ctx context.Context, principalID, newHash string) error
}

// TokenPair is the result of every minting operation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the verified caller attached to request contexts by the
// verification filter.
type Identity struct {
	PrincipalID string
	Roles       []string
}

// HasRole reports whether the identity carries the role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// FederatedAssertion is the provider-verified identity handed to
// [Service.CompleteFederatedLogin] by the federated bridge after a
// successful code exchange and profile fetch.
type FederatedAssertion struct {
	Provider string
	Subject  string
	Username string
	Email    string
}

// SignUpRequest carries the fields of a local account registration.
type SignUpRequest struct {
	Username string
	Secret   string
	Roles    []string
}

// AuditEvent is the structured audit record emitted on every flow exit.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the service's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to
// an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited      = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure        = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected  = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshRateLimited    = internalmetrics.MetricRefreshRateLimited
	MetricRefreshRevoked        = internalmetrics.MetricRefreshRevoked
	MetricLogout                = internalmetrics.MetricLogout
	MetricTokenPairIssued       = internalmetrics.MetricTokenPairIssued
	MetricFederatedLoginSuccess = internalmetrics.MetricFederatedLoginSuccess
	MetricFederatedLoginFailure = internalmetrics.MetricFederatedLoginFailure
	MetricPrincipalCreated      = internalmetrics.MetricPrincipalCreated
	MetricSignUpSuccess         = internalmetrics.MetricSignUpSuccess
	MetricSignUpDuplicate       = internalmetrics.MetricSignUpDuplicate
	MetricSignUpFailure         = internalmetrics.MetricSignUpFailure
	MetricVerifyLatency         = internalmetrics.MetricVerifyLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
