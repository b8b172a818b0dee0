// Package httpauth exposes the session orchestrator over HTTP: login,
// refresh, logout, sign-up, and user-info endpoints with a uniform
// JSON response envelope.
//
// Access tokens travel in the Authorization response header; refresh
// tokens live in an HttpOnly cookie with a header fallback for
// non-browser clients. Authentication failures share one envelope so
// responses cannot distinguish an unknown username from a wrong
// secret.
package httpauth
