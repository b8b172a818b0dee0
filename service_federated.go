package authkit

import (
	"context"
	"errors"
)

// CompleteFederatedLogin turns a provider-verified assertion into a
// local session. An existing linked principal is logged in; an unknown
// (provider, subject) pair is auto-provisioned with the default role
// set and no local credential. The resulting pair is minted through
// the same path as password login, so a federated login also
// invalidates every prior session.
func (s *Service) CompleteFederatedLogin(ctx context.Context, assertion FederatedAssertion) (*TokenPair, error) {
	if s == nil || s.codec == nil {
		return nil, ErrServiceNotReady
	}
	if assertion.Provider == "" {
		s.metricInc(MetricFederatedLoginFailure)
		s.emitAudit(ctx, auditEventFederatedLoginFailure, false, "", assertion.Username, "", ErrUnknownProvider, func() map[string]string {
			return map[string]string{"reason": "missing_provider"}
		})
		return nil, ErrUnknownProvider
	}
	if assertion.Subject == "" {
		s.metricInc(MetricFederatedLoginFailure)
		s.emitAudit(ctx, auditEventFederatedLoginFailure, false, "", assertion.Username, assertion.Provider, ErrUnauthorized, func() map[string]string {
			return map[string]string{"reason": "incomplete_assertion"}
		})
		return nil, ErrUnauthorized
	}

	principal, err := s.principals.GetPrincipalByExternalIdentity(ctx, assertion.Provider, assertion.Subject)
	switch {
	case err == nil:
		// Linked principal found, fall through to status check.
	case errors.Is(err, ErrPrincipalNotFound):
		principal, err = s.provisionFederated(ctx, assertion)
		if err != nil {
			s.metricInc(MetricFederatedLoginFailure)
			s.emitAudit(ctx, auditEventFederatedLoginFailure, false, "", assertion.Username, assertion.Provider, err, func() map[string]string {
				return map[string]string{"reason": "provision_failed"}
			})
			return nil, err
		}
	default:
		s.metricInc(MetricFederatedLoginFailure)
		s.emitAudit(ctx, auditEventFederatedLoginFailure, false, "", assertion.Username, assertion.Provider, err, func() map[string]string {
			return map[string]string{"reason": "provider_lookup_failed"}
		})
		return nil, err
	}

	if principal.Status != PrincipalActive {
		s.metricInc(MetricFederatedLoginFailure)
		s.emitAudit(ctx, auditEventFederatedLoginFailure, false, principal.PrincipalID, principal.Username, assertion.Provider, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "account_status"}
		})
		return nil, ErrInvalidCredentials
	}

	pair, err := s.mintPair(ctx, principal)
	if err != nil {
		s.metricInc(MetricFederatedLoginFailure)
		s.emitAudit(ctx, auditEventFederatedLoginFailure, false, principal.PrincipalID, principal.Username, assertion.Provider, err, func() map[string]string {
			return map[string]string{"reason": "mint_failed"}
		})
		return nil, err
	}

	s.metricInc(MetricFederatedLoginSuccess)
	s.emitAudit(ctx, auditEventFederatedLoginSuccess, true, principal.PrincipalID, principal.Username, assertion.Provider, nil, nil)

	return pair, nil
}

// provisionFederated creates a principal for a first-time federated
// login. The record carries no password hash; such accounts can never
// authenticate through [Service.Login].
func (s *Service) provisionFederated(ctx context.Context, assertion FederatedAssertion) (PrincipalRecord, error) {
	username := assertion.Username
	if username == "" {
		username = assertion.Email
	}
	if username == "" {
		username = assertion.Provider + ":" + assertion.Subject
	}

	principal, err := s.principals.CreatePrincipal(ctx, CreatePrincipalInput{
		Username: username,
		Roles:    append([]string(nil), s.config.Account.DefaultRoles...),
		Provider: assertion.Provider,
		Subject:  assertion.Subject,
	})
	if err != nil {
		return PrincipalRecord{}, err
	}

	s.metricInc(MetricPrincipalCreated)
	s.emitAudit(ctx, auditEventPrincipalCreated, true, principal.PrincipalID, principal.Username, assertion.Provider, nil, nil)

	return principal, nil
}
