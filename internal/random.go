package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const (
	nonceSize    = 24
	verifierSize = 48
)

// NewNonce returns a base64url-encoded random value used as the
// anti-forgery state for federated login flows.
func NewNonce() (string, error) {
	var raw [nonceSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewCodeVerifier returns a PKCE code verifier (43–128 unreserved
// characters per RFC 7636). 48 random bytes encode to 64 characters.
func NewCodeVerifier() (string, error) {
	var raw [verifierSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// S256Challenge computes the PKCE S256 code challenge for a verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// HashToken returns the SHA-256 of an encoded token. The token store
// persists only this hash, never the token itself.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// SignPayload computes an HMAC-SHA256 tag over payload with key.
func SignPayload(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// VerifyPayload reports whether tag is a valid HMAC-SHA256 tag for
// payload under key, in constant time.
func VerifyPayload(key, payload, tag []byte) bool {
	return hmac.Equal(SignPayload(key, payload), tag)
}
