package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/academyshow/authkit/internal"
	"github.com/academyshow/authkit/internal/audit"
	"github.com/academyshow/authkit/internal/rate"
	"github.com/academyshow/authkit/password"
	"github.com/academyshow/authkit/token"
	"github.com/academyshow/authkit/tokenstore"
)

// Service is the session orchestrator: the sole minter of token pairs
// and the only component that touches the token store. Construct it
// through [Builder.Build]; all methods are safe for concurrent use.
type Service struct {
	config        Config
	codec         *token.Codec
	store         *tokenstore.Store
	hasher        *password.Hasher
	principals    PrincipalProvider
	rateLimiter   *rate.Limiter
	loginThrottle bool
	audit         *audit.Dispatcher
	metrics       *Metrics
}

// Close stops the audit dispatcher after draining buffered events.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.audit != nil {
		s.audit.Close()
	}
}

// AuditDropped reports audit events discarded due to backpressure.
func (s *Service) AuditDropped() uint64 {
	if s == nil || s.audit == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MetricsSnapshot returns a deep copy of the current metrics.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

func (s *Service) metricInc(id MetricID) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Inc(id)
}

// Login authenticates a username/secret pair and mints a token pair.
// Unknown username, wrong secret, empty secret, and deleted accounts
// all fail with [ErrInvalidCredentials] so the caller cannot probe for
// account existence. A successful login overwrites the principal's
// stored refresh record, invalidating every prior session.
func (s *Service) Login(ctx context.Context, username, secret string) (*TokenPair, error) {
	if s == nil || s.codec == nil {
		return nil, ErrServiceNotReady
	}
	ip := clientIPFromContext(ctx)

	if s.loginThrottle {
		if err := s.rateLimiter.CheckLogin(ctx, username, ip); err != nil {
			if !errors.Is(err, rate.ErrRateLimited) {
				s.emitAudit(ctx, auditEventLoginFailure, false, "", username, "", ErrStoreUnavailable, func() map[string]string {
					return map[string]string{"reason": "limiter_unavailable"}
				})
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			s.metricInc(MetricLoginRateLimited)
			s.emitAudit(ctx, auditEventLoginRateLimited, false, "", username, "", ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
	}

	if secret == "" {
		return nil, s.failLogin(ctx, username, ip, "", "empty_secret")
	}

	principal, err := s.principals.GetPrincipalByUsername(ctx, username)
	if err != nil {
		return nil, s.failLogin(ctx, username, ip, "", "principal_not_found")
	}
	if principal.PasswordHash == "" {
		// Federated-only account: no secret can ever match.
		return nil, s.failLogin(ctx, username, ip, principal.PrincipalID, "no_local_credential")
	}

	ok, err := s.hasher.Verify(secret, principal.PasswordHash)
	if err != nil || !ok {
		return nil, s.failLogin(ctx, username, ip, principal.PrincipalID, "secret_mismatch")
	}
	if principal.Status != PrincipalActive {
		return nil, s.failLogin(ctx, username, ip, principal.PrincipalID, "account_status")
	}

	if s.config.Password.UpgradeOnLogin {
		if needs, err := s.hasher.NeedsRehash(principal.PasswordHash); err == nil && needs {
			if upgraded, err := s.hasher.Hash(secret); err == nil {
				// Rehash update is best-effort and must not block login.
				if err := s.principals.UpdatePasswordHash(ctx, principal.PrincipalID, upgraded); err != nil {
					log.Print("authkit: password hash upgrade update failed")
				}
			} else {
				log.Print("authkit: password hash upgrade generation failed")
			}
		}
	}
	secret = ""

	pair, err := s.mintPair(ctx, principal)
	if err != nil {
		s.metricInc(MetricLoginFailure)
		s.emitAudit(ctx, auditEventLoginFailure, false, principal.PrincipalID, username, "", err, func() map[string]string {
			return map[string]string{"reason": "mint_failed"}
		})
		return nil, err
	}

	if s.loginThrottle {
		if err := s.rateLimiter.ResetLogin(ctx, username, ip); err != nil {
			log.Print("authkit: login limiter reset failed")
		}
	}

	s.metricInc(MetricLoginSuccess)
	s.emitAudit(ctx, auditEventLoginSuccess, true, principal.PrincipalID, username, "", nil, nil)

	return pair, nil
}

func (s *Service) failLogin(ctx context.Context, username, ip, principalID, reason string) error {
	if s.loginThrottle {
		switch err := s.rateLimiter.IncrementLogin(ctx, username, ip); {
		case err == nil:
		case errors.Is(err, rate.ErrRateLimited):
			s.metricInc(MetricLoginRateLimited)
			s.emitAudit(ctx, auditEventLoginRateLimited, false, principalID, username, "", ErrLoginRateLimited, nil)
			return ErrLoginRateLimited
		default:
			s.emitAudit(ctx, auditEventLoginFailure, false, principalID, username, "", ErrStoreUnavailable, func() map[string]string {
				return map[string]string{"reason": "limiter_unavailable"}
			})
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	s.metricInc(MetricLoginFailure)
	s.emitAudit(ctx, auditEventLoginFailure, false, principalID, username, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidCredentials
}

// Refresh verifies the presented refresh token, atomically rotates the
// stored record, and mints a new pair. A token that was already rotated
// away fails with [ErrRefreshReuse]; a principal with no stored record
// fails with [ErrRevoked]. A principal that has since been deleted or
// disabled fails with [ErrRevoked] and loses its stored record. Of N
// concurrent calls presenting the same token exactly one succeeds.
//
// The new access token carries the principal's current role set, so
// role changes take effect on the next rotation.
func (s *Service) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if s == nil || s.codec == nil {
		return nil, ErrServiceNotReady
	}

	claims, err := s.codec.VerifyRefresh(presented)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "verify_failed"}
		})
		return nil, ErrRefreshInvalid
	}
	principalID := claims.PrincipalID

	if s.rateLimiter != nil {
		if err := s.rateLimiter.CheckRefresh(ctx, principalID); err != nil {
			if !errors.Is(err, rate.ErrRateLimited) {
				s.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", ErrStoreUnavailable, func() map[string]string {
					return map[string]string{"reason": "limiter_unavailable"}
				})
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			s.metricInc(MetricRefreshRateLimited)
			s.emitAudit(ctx, auditEventRefreshRateLimited, false, principalID, "", "", ErrRefreshRateLimited, nil)
			return nil, ErrRefreshRateLimited
		}
	}

	principal, err := s.principals.GetPrincipalByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, s.revokeRefresh(ctx, principalID, "principal_not_found")
		}
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", ErrStoreUnavailable, func() map[string]string {
			return map[string]string{"reason": "principal_lookup_failed"}
		})
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if principal.Status != PrincipalActive {
		return nil, s.revokeRefresh(ctx, principalID, "account_status")
	}

	next, err := s.codec.IssueRefresh(principalID)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", err, func() map[string]string {
			return map[string]string{"reason": "issue_refresh_failed"}
		})
		return nil, err
	}
	access, err := s.codec.IssueAccess(principalID, principal.Roles)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", err, func() map[string]string {
			return map[string]string{"reason": "issue_access_failed"}
		})
		return nil, err
	}

	// Rotation goes last: any failure above leaves the stored chain
	// untouched, so the caller can retry with the same token.
	err = s.store.Rotate(
		ctx,
		principalID,
		internal.HashToken(presented),
		internal.HashToken(next),
		s.config.Token.RefreshTTL,
	)
	if err != nil {
		switch {
		case errors.Is(err, tokenstore.ErrHashMismatch):
			s.metricInc(MetricRefreshReuseDetected)
			s.emitAudit(ctx, auditEventRefreshReuseDetected, false, principalID, "", "", ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, tokenstore.ErrNotFound):
			s.metricInc(MetricRefreshRevoked)
			s.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", ErrRevoked, func() map[string]string {
				return map[string]string{"reason": "record_not_found"}
			})
			return nil, ErrRevoked
		default:
			s.metricInc(MetricRefreshFailure)
			s.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", ErrStoreUnavailable, func() map[string]string {
				return map[string]string{"reason": "rotate_failed"}
			})
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	s.metricInc(MetricRefreshSuccess)
	s.metricInc(MetricTokenPairIssued)
	s.emitAudit(ctx, auditEventRefreshSuccess, true, principalID, "", "", nil, nil)

	return &TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// revokeRefresh drops the principal's stored record and fails the
// refresh closed. Used when the token's principal no longer exists or
// is no longer active: the token must not survive the account.
func (s *Service) revokeRefresh(ctx context.Context, principalID, reason string) error {
	if err := s.store.Remove(ctx, principalID); err != nil {
		log.Print("authkit: refresh revocation removal failed")
	}
	s.metricInc(MetricRefreshRevoked)
	s.emitAudit(ctx, auditEventRefreshInvalid, false, principalID, "", "", ErrRevoked, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrRevoked
}

// Logout deletes the principal's refresh record. Subsequent refreshes
// fail with [ErrRevoked]. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	if s == nil || s.store == nil {
		return ErrServiceNotReady
	}

	if err := s.store.Remove(ctx, principalID); err != nil {
		s.emitAudit(ctx, auditEventLogout, false, principalID, "", "", ErrStoreUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricLogout)
	s.emitAudit(ctx, auditEventLogout, true, principalID, "", "", nil, nil)
	return nil
}

// Verify checks an access token and returns the caller's [Identity].
// It is pure computation: no store lookup, no provider call. Failures
// map to the codec's classification (expired, bad signature, malformed).
func (s *Service) Verify(_ context.Context, accessToken string) (*Identity, error) {
	if s == nil || s.codec == nil {
		return nil, ErrServiceNotReady
	}

	var start time.Time
	if s.metrics.LatencyEnabled() {
		start = time.Now()
	}

	claims, err := s.codec.VerifyAccess(accessToken)
	if !start.IsZero() {
		s.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	return &Identity{
		PrincipalID: claims.PrincipalID,
		Roles:       claims.Roles,
	}, nil
}

// mintPair issues an access/refresh pair and overwrites the stored
// refresh record. Shared by Login and CompleteFederatedLogin so both
// paths have identical minting semantics.
func (s *Service) mintPair(ctx context.Context, principal PrincipalRecord) (*TokenPair, error) {
	access, err := s.codec.IssueAccess(principal.PrincipalID, principal.Roles)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefresh(principal.PrincipalID)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, principal.PrincipalID, internal.HashToken(refresh), s.config.Token.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricTokenPairIssued)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Ping reports token store reachability, for readiness probes.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.store == nil {
		return ErrServiceNotReady
	}
	_, err := s.store.Ping(ctx)
	return err
}
