// Package rate provides Redis-backed fixed-window counters guarding the
// login and refresh flows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al:  — login per-username
//   - ali: — login per-IP
//   - ar:  — refresh per-principal
//
// # What this package must NOT do
//
//   - Decide which flows are throttled (the Service owns policy).
//   - Be imported outside the authkit module.
package rate
