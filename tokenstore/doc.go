// Package tokenstore persists the server-side half of the refresh
// protocol: one record per principal holding the SHA-256 of the
// currently valid refresh token.
//
// # Rotation protocol
//
// Put overwrites unconditionally (login). Rotate is a Lua
// compare-and-swap: it succeeds only when the presented hash matches
// the stored one, which makes refresh-token theft a detectable,
// single-use event. All operations on one principal go through a single
// Redis key, so they are linearizable per principal without any Go-side
// locking.
//
// # What this package must NOT do
//
//   - Store or log token plaintext. Only hashes are persisted.
//   - Verify token signatures (that is the codec's job).
package tokenstore
