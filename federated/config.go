package federated

import (
	"errors"
	"time"
)

// Provider describes one external OAuth2 identity provider. The
// profile field paths are dot-separated lookups into the provider's
// profile JSON ("kakao_account.email" descends one object level).
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Scopes       []string

	SubjectField  string
	UsernameField string
	EmailField    string
}

// Google returns the provider preset for Google OpenID Connect login.
func Google(clientID, clientSecret string) Provider {
	return Provider{
		Name:          "google",
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		AuthURL:       "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:      "https://oauth2.googleapis.com/token",
		ProfileURL:    "https://openidconnect.googleapis.com/v1/userinfo",
		Scopes:        []string{"openid", "profile", "email"},
		SubjectField:  "sub",
		UsernameField: "email",
		EmailField:    "email",
	}
}

// GitHub returns the provider preset for GitHub OAuth login.
func GitHub(clientID, clientSecret string) Provider {
	return Provider{
		Name:          "github",
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		AuthURL:       "https://github.com/login/oauth/authorize",
		TokenURL:      "https://github.com/login/oauth/access_token",
		ProfileURL:    "https://api.github.com/user",
		Scopes:        []string{"read:user", "user:email"},
		SubjectField:  "id",
		UsernameField: "login",
		EmailField:    "email",
	}
}

// Kakao returns the provider preset for Kakao login.
func Kakao(clientID, clientSecret string) Provider {
	return Provider{
		Name:          "kakao",
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		AuthURL:       "https://kauth.kakao.com/oauth/authorize",
		TokenURL:      "https://kauth.kakao.com/oauth/token",
		ProfileURL:    "https://kapi.kakao.com/v2/user/me",
		Scopes:        []string{"profile_nickname", "account_email"},
		SubjectField:  "id",
		UsernameField: "properties.nickname",
		EmailField:    "kakao_account.email",
	}
}

// Config configures the [Bridge].
type Config struct {
	// Providers indexed by the name used in bridge URLs.
	Providers []Provider

	// StateKey signs the pending-authorization cookie. Required.
	StateKey []byte

	// CallbackBaseURL is the externally visible base of the callback
	// route; the provider redirects to CallbackBaseURL + "/" + name.
	CallbackBaseURL string

	// AllowedRedirects is the prefix allowlist for post-login redirect
	// targets. The first entry is the default target.
	AllowedRedirects []string

	// FailureURL receives the browser on any callback failure.
	FailureURL string

	// StateTTL bounds how long a begun login may stay pending.
	// Defaults to 5 minutes.
	StateTTL time.Duration

	// CookieSecure marks the state and refresh cookies Secure.
	CookieSecure bool

	// RefreshCookieName defaults to "refresh_token".
	RefreshCookieName string

	// RefreshCookieTTL defaults to the orchestrator's refresh TTL and
	// must be set by the caller; zero leaves a session cookie.
	RefreshCookieTTL time.Duration
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider required")
	}
	for _, p := range c.Providers {
		if p.Name == "" || p.ClientID == "" {
			return errors.New("provider name and client id required")
		}
		if p.AuthURL == "" || p.TokenURL == "" || p.ProfileURL == "" {
			return errors.New("provider endpoints required")
		}
		if p.SubjectField == "" {
			return errors.New("provider subject field required")
		}
	}
	if len(c.StateKey) < 32 {
		return errors.New("state key must be at least 32 bytes")
	}
	if c.CallbackBaseURL == "" {
		return errors.New("callback base URL required")
	}
	if len(c.AllowedRedirects) == 0 {
		return errors.New("at least one allowed redirect required")
	}
	if c.FailureURL == "" {
		return errors.New("failure URL required")
	}
	return nil
}
