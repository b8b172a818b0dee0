package federated

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/academyshow/authkit/internal"
)

const stateCookieName = "fed_state"

var errBadState = errors.New("invalid pending authorization state")

// pendingAuthorization is the per-login state carried across the
// provider round trip. It lives only in the signed cookie; the server
// keeps nothing.
type pendingAuthorization struct {
	Provider string `json:"p"`
	Redirect string `json:"r"`
	Nonce    string `json:"n"`
	Verifier string `json:"v"`
	Expires  int64  `json:"e"`
}

// encodePending serializes and signs a pending authorization as
// base64url(payload) + "." + base64url(tag).
func encodePending(key []byte, p pendingAuthorization) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	tag := internal.SignPayload(key, payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(tag), nil
}

// decodePending verifies the signature and expiry before trusting any
// field. Every failure collapses to errBadState.
func decodePending(key []byte, value string, now time.Time) (pendingAuthorization, error) {
	var p pendingAuthorization

	encPayload, encTag, ok := strings.Cut(value, ".")
	if !ok {
		return p, errBadState
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return p, errBadState
	}
	tag, err := base64.RawURLEncoding.DecodeString(encTag)
	if err != nil {
		return p, errBadState
	}
	if !internal.VerifyPayload(key, payload, tag) {
		return p, errBadState
	}

	if err := json.Unmarshal(payload, &p); err != nil {
		return p, errBadState
	}
	if p.Provider == "" || p.Nonce == "" || p.Verifier == "" {
		return p, errBadState
	}
	if now.Unix() > p.Expires {
		return p, errBadState
	}
	return p, nil
}
