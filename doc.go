// Package authkit provides a stateless authentication core with JWT
// access tokens, rotating JWT refresh tokens bound to a Redis-backed
// store, and a federated login handoff.
//
// The package is designed for concurrent server workloads: Service
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Service], [Builder],
// [Config], and value types (TokenPair, Identity, PrincipalRecord).
// Token encoding lives in token/, refresh persistence in tokenstore/,
// request-level verification in middleware/, and the OAuth2 handoff in
// federated/. Principal storage is the caller's: implementations of
// [PrincipalProvider] plug in the credential store.
//
// # What this package must NOT do
//
//   - Expose Redis clients or store encoding details in its public API.
//   - Persist principals (the [PrincipalProvider] owns that).
//   - Perform I/O outside of Service methods (construction via Builder
//     is allocation-only until Build).
//
// # Performance contract
//
// Verify is the hot path. It is pure computation over the token bytes
// and must complete without Redis round-trips. Login, Refresh, and
// Logout are allowed one Redis round-trip plus rate-limiter counters.
package authkit
