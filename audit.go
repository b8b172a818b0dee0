package authkit

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshRateLimited     = "refresh_rate_limited"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventLogout                 = "logout"
	auditEventFederatedLoginSuccess  = "federated_login_success"
	auditEventFederatedLoginFailure  = "federated_login_failure"
	auditEventSignUpSuccess          = "sign_up_success"
	auditEventSignUpFailure          = "sign_up_failure"
	auditEventSignUpDuplicate        = "sign_up_duplicate"
	auditEventPrincipalCreated       = "principal_created"
)

// AuditErrorCode is the stable machine-readable error label recorded in
// audit events instead of raw error text.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRevoked            AuditErrorCode = "revoked"
	auditErrPrincipalNotFound  AuditErrorCode = "principal_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnknownProvider    AuditErrorCode = "unknown_provider"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (s *Service) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	principalID string,
	username string,
	provider string,
	err error,
	detailBuilder func() map[string]string,
) {
	if s == nil || s.audit == nil {
		return
	}

	var detail map[string]string
	if detailBuilder != nil {
		detail = detailBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		Action:      action,
		PrincipalID: principalID,
		Username:    username,
		Provider:    provider,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Detail:      detail,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	s.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrRevoked):
		return auditErrRevoked
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrUsernameTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrUnknownProvider):
		return auditErrUnknownProvider
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
