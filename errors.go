package authkit

import "errors"

var (
	// ErrUnauthorized reports a missing or unusable access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is the single failure returned for unknown
	// username, wrong secret, empty secret, and deleted accounts, so
	// callers cannot distinguish the cases.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound reports a lookup for a principal that does
	// not exist. Provider implementations return it from their Get
	// methods.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrUsernameTaken reports a sign-up with an already-used username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrSignUpDisabled reports account creation being switched off.
	ErrSignUpDisabled = errors.New("sign-up disabled")
	// ErrLoginRateLimited reports an exhausted login attempt budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited reports an exhausted refresh attempt budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrRefreshInvalid reports a refresh token that fails signature or
	// expiry verification.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse reports a structurally valid refresh token that is
	// no longer the stored one: it was already rotated away.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRevoked reports a refresh attempt for a principal with no
	// stored record (logged out, revoked, or expired).
	ErrRevoked = errors.New("refresh token revoked")
	// ErrUnknownProvider reports a federated flow naming a provider that
	// is not configured.
	ErrUnknownProvider = errors.New("unknown federated provider")
	// ErrStoreUnavailable wraps token store transport failures.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrServiceNotReady reports use of a Service that was not built.
	ErrServiceNotReady = errors.New("service not initialized")
)
