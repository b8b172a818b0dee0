// Package federated implements the OAuth2 authorization-code login
// bridge: redirecting the browser to an external identity provider,
// carrying the pending authorization in an HMAC-signed cookie, and
// completing the exchange into a local session.
//
// # Flow
//
//  1. [Bridge.Begin] — picks the provider from the URL, writes a signed
//     short-lived state cookie (nonce, PKCE verifier, redirect target)
//     and 302s to the provider's authorization endpoint.
//  2. [Bridge.Callback] — consumes the cookie exactly once, validates
//     the anti-forgery nonce, exchanges the code, fetches the profile,
//     and hands a FederatedAssertion to the session orchestrator.
//
// # Architecture boundaries
//
// The bridge never mints tokens and never touches the token store: all
// session decisions are delegated through [SessionMinter]. It holds no
// server-side state; the pending authorization lives entirely in the
// signed cookie.
package federated
