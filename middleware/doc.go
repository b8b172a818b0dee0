// Package middleware exposes HTTP middleware adapters for the
// per-request verification filter built on top of authkit.Service.
//
// # Filters and gates
//
//   - [Authenticate] — verifies a Bearer access token and attaches the
//     caller's identity to the request context. Requests without a
//     usable token proceed unauthenticated; the filter never rejects.
//   - [RequireAuth] — rejects unauthenticated requests with 401.
//   - [RequireRole] — rejects authenticated requests lacking a role
//     with 403.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Service.Verify calls. It
// does NOT implement verification itself — all token decisions are
// delegated to the service.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Access the token store (verification is pure computation).
//   - Surface token error detail to clients beyond the status code.
package middleware
