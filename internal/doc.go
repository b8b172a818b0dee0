// Package internal holds small cryptographic helpers shared across authkit
// packages: random nonce and PKCE material generation, token hashing, and
// HMAC cookie signing.
//
// # Architecture boundaries
//
// This package performs no I/O and holds no state. Everything here is a pure
// function over crypto/rand output or caller-supplied bytes.
//
// # What this package must NOT do
//
//   - Import any other authkit package.
//   - Persist or log any secret material.
package internal
