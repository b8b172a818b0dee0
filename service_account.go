package authkit

import (
	"context"
	"errors"
)

// SignUp registers a local-credential principal. The secret is hashed
// before the provider sees it; the provider never receives plaintext.
// Duplicate usernames fail with [ErrUsernameTaken].
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*PrincipalRecord, error) {
	if s == nil || s.hasher == nil {
		return nil, ErrServiceNotReady
	}
	if !s.config.Account.SignUpEnabled {
		return nil, ErrSignUpDisabled
	}
	if req.Username == "" {
		s.metricInc(MetricSignUpFailure)
		s.emitAudit(ctx, auditEventSignUpFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_username"}
		})
		return nil, ErrInvalidCredentials
	}

	if _, err := s.principals.GetPrincipalByUsername(ctx, req.Username); err == nil {
		s.metricInc(MetricSignUpDuplicate)
		s.emitAudit(ctx, auditEventSignUpDuplicate, false, "", req.Username, "", ErrUsernameTaken, nil)
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrPrincipalNotFound) {
		s.metricInc(MetricSignUpFailure)
		s.emitAudit(ctx, auditEventSignUpFailure, false, "", req.Username, "", err, func() map[string]string {
			return map[string]string{"reason": "provider_lookup_failed"}
		})
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Secret)
	if err != nil {
		s.metricInc(MetricSignUpFailure)
		s.emitAudit(ctx, auditEventSignUpFailure, false, "", req.Username, "", err, func() map[string]string {
			return map[string]string{"reason": "hash_failed"}
		})
		return nil, err
	}
	req.Secret = ""

	roles := req.Roles
	if len(roles) == 0 {
		roles = append([]string(nil), s.config.Account.DefaultRoles...)
	}

	principal, err := s.principals.CreatePrincipal(ctx, CreatePrincipalInput{
		Username:     req.Username,
		PasswordHash: hash,
		Roles:        roles,
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			// Lost a race with a concurrent sign-up for the same name.
			s.metricInc(MetricSignUpDuplicate)
			s.emitAudit(ctx, auditEventSignUpDuplicate, false, "", req.Username, "", ErrUsernameTaken, nil)
			return nil, ErrUsernameTaken
		}
		s.metricInc(MetricSignUpFailure)
		s.emitAudit(ctx, auditEventSignUpFailure, false, "", req.Username, "", err, func() map[string]string {
			return map[string]string{"reason": "create_failed"}
		})
		return nil, err
	}

	s.metricInc(MetricSignUpSuccess)
	s.metricInc(MetricPrincipalCreated)
	s.emitAudit(ctx, auditEventSignUpSuccess, true, principal.PrincipalID, principal.Username, "", nil, nil)
	s.emitAudit(ctx, auditEventPrincipalCreated, true, principal.PrincipalID, principal.Username, "", nil, nil)

	principal.PasswordHash = ""
	return &principal, nil
}

// UsernameAvailable reports whether no active principal holds the name.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if s == nil || s.principals == nil {
		return false, ErrServiceNotReady
	}
	if username == "" {
		return false, nil
	}
	_, err := s.principals.GetPrincipalByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrPrincipalNotFound) {
		return true, nil
	}
	return false, err
}

// PrincipalInfo loads a principal by ID with the credential hash
// stripped, suitable for returning to the principal themselves.
func (s *Service) PrincipalInfo(ctx context.Context, principalID string) (*PrincipalRecord, error) {
	if s == nil || s.principals == nil {
		return nil, ErrServiceNotReady
	}
	principal, err := s.principals.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	principal.PasswordHash = ""
	return &principal, nil
}
