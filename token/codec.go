package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Curve25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// Token use values carried in the "use" claim. A refresh token never
// verifies as an access token and vice versa.
const (
	useAccess  = "access"
	useRefresh = "refresh"
)

var (
	// ErrExpired reports a structurally valid token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature reports a token whose signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrMalformed reports input that is not a well-formed token, or a
	// token whose claims fail validation for any non-expiry reason.
	ErrMalformed = errors.New("token malformed")
)

// Config holds codec key material and issuance parameters. It is read
// once by NewCodec and never mutated afterwards.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// KeyID names the active signing key. When set it is written into
	// the kid header of every issued token.
	KeyID string
	// PreviousKeys maps retired kid values to their verify keys so
	// tokens signed before a rotation keep verifying until they expire.
	PreviousKeys map[string][]byte
}

// Codec issues and verifies the signed access and refresh tokens.
// Verification is pure computation: no I/O, no shared mutable state.
type Codec struct {
	config Config
}

// AccessClaims is the access token claim set.
type AccessClaims struct {
	PrincipalID string   `json:"pid"`
	Roles       []string `json:"roles,omitempty"`
	Use         string   `json:"use"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh token claim set. The registered ID claim
// carries a random jti so consecutive issues are never identical.
type RefreshClaims struct {
	PrincipalID string `json:"pid"`
	Use         string `json:"use"`
	jwt.RegisteredClaims
}

// NewCodec validates key material and TTLs. Missing or unusable signing
// keys are a construction error: callers treat that as fatal.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires a private key")
		}
		if len(cfg.PublicKey) == 0 && len(cfg.PreviousKeys) == 0 {
			return nil, errors.New("ed25519 requires a public key or previous key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	for kid, key := range cfg.PreviousKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("previous key map contains empty kid")
		}
		if cfg.SigningMethod == MethodEd25519 {
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		} else if len(key) == 0 {
			return nil, fmt.Errorf("empty verify key for kid %q", kid)
		}
	}
	if len(cfg.PreviousKeys) > 0 && cfg.KeyID == "" {
		return nil, errors.New("previous keys require an active KeyID")
	}

	return &Codec{config: cfg}, nil
}

// IssueAccess mints an access token with the configured TTL.
func (c *Codec) IssueAccess(principalID string, roles []string) (string, error) {
	return c.IssueAccessTTL(principalID, roles, c.config.AccessTTL)
}

// IssueAccessTTL mints an access token with an explicit TTL.
func (c *Codec) IssueAccessTTL(principalID string, roles []string, ttl time.Duration) (string, error) {
	if principalID == "" {
		return "", errors.New("empty principal id")
	}
	if ttl <= 0 {
		return "", errors.New("non-positive ttl")
	}

	now := time.Now()
	claims := AccessClaims{
		PrincipalID: principalID,
		Roles:       roles,
		Use:         useAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	return c.sign(claims)
}

// IssueRefresh mints a refresh token with the configured refresh TTL.
// Each call embeds a fresh jti, so two issues never collide.
func (c *Codec) IssueRefresh(principalID string) (string, error) {
	if principalID == "" {
		return "", errors.New("empty principal id")
	}

	now := time.Now()
	claims := RefreshClaims{
		PrincipalID: principalID,
		Use:         useRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	return c.sign(claims)
}

// VerifyAccess parses and verifies an access token.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != useAccess || claims.PrincipalID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// VerifyRefresh parses and verifies a refresh token.
func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Use != useRefresh || claims.PrincipalID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(c.method(), claims)
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}

	signKey, err := c.signKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

func (c *Codec) verify(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, c.keyFor)
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return ErrMalformed
	}
	return nil
}

// keyFor resolves the verify key for a parsed token header. When the
// token carries a kid it must match the active KeyID or an entry in
// PreviousKeys; tokens without a kid verify against the active key.
func (c *Codec) keyFor(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)

	if kid != "" && kid != c.config.KeyID {
		key, ok := c.config.PreviousKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return c.verifyKeyFromBytes(key)
	}

	if c.config.KeyID != "" && kid == "" && len(c.config.PreviousKeys) > 0 {
		return nil, errors.New("missing kid")
	}

	return c.activeVerifyKey()
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(c.config.PrivateKey)
	}
}

func (c *Codec) activeVerifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPublicKey(c.config.PublicKey)
	}
}

func (c *Codec) verifyKeyFromBytes(key []byte) (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

// classify collapses parser errors into the package's three sentinels.
// Expiry is checked first: an expired token with a valid signature must
// report ErrExpired, not a claims error.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrBadSignature
	default:
		return ErrMalformed
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
