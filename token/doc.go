// Package token issues and verifies the signed access and refresh tokens
// using configured signing keys and strict validation semantics suitable
// for low-latency authentication paths.
package token
