package federated

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/academyshow/authkit"
	"github.com/academyshow/authkit/internal"
)

// SessionMinter is the slice of the session orchestrator the bridge
// needs. *authkit.Service satisfies it.
type SessionMinter interface {
	CompleteFederatedLogin(ctx context.Context, assertion authkit.FederatedAssertion) (*authkit.TokenPair, error)
}

// Bridge serves the begin and callback legs of the federated login
// flow. Safe for concurrent use.
type Bridge struct {
	config    Config
	providers map[string]Provider
	minter    SessionMinter
	client    *http.Client
	now       func() time.Time
}

// New validates the configuration and builds a [Bridge].
func New(cfg Config, minter SessionMinter) (*Bridge, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if minter == nil {
		return nil, authkit.ErrServiceNotReady
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 5 * time.Minute
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "refresh_token"
	}

	providers := make(map[string]Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name] = p
	}

	return &Bridge{
		config:    cfg,
		providers: providers,
		minter:    minter,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}, nil
}

// Begin starts a federated login. The provider name is the final URL
// segment (GET /oauth2/authorization/{provider}). Unknown providers
// get 404; everything else 302s to the provider's authorization URL.
func (b *Bridge) Begin(w http.ResponseWriter, r *http.Request) {
	provider, err := b.lookupProvider(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	nonce, err := internal.NewNonce()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	verifier, err := internal.NewCodeVerifier()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	state, err := encodePending(b.config.StateKey, pendingAuthorization{
		Provider: provider.Name,
		Redirect: b.resolveRedirect(r.URL.Query().Get("redirect_uri")),
		Nonce:    nonce,
		Verifier: verifier,
		Expires:  b.now().Add(b.config.StateTTL).Unix(),
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(b.config.StateTTL / time.Second),
		HttpOnly: true,
		Secure:   b.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", provider.ClientID)
	query.Set("redirect_uri", b.callbackURL(provider.Name))
	query.Set("state", nonce)
	query.Set("code_challenge", internal.S256Challenge(verifier))
	query.Set("code_challenge_method", "S256")
	if len(provider.Scopes) > 0 {
		query.Set("scope", strings.Join(provider.Scopes, " "))
	}

	http.Redirect(w, r, provider.AuthURL+"?"+query.Encode(), http.StatusFound)
}

// Callback finishes a federated login (GET /oauth2/code/{provider}).
// The state cookie is cleared on every outcome so a pending
// authorization can be consumed at most once. Failures redirect to the
// configured failure URL; nothing is minted on any failure path.
func (b *Bridge) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookieName)
	b.clearStateCookie(w)
	if err != nil {
		b.fail(w, r, "missing_state")
		return
	}

	pending, err := decodePending(b.config.StateKey, cookie.Value, b.now())
	if err != nil {
		b.fail(w, r, "bad_state")
		return
	}

	provider, err := b.lookupProvider(r)
	if err != nil {
		b.fail(w, r, "unknown_provider")
		return
	}
	if provider.Name != pending.Provider {
		b.fail(w, r, "provider_mismatch")
		return
	}

	query := r.URL.Query()
	if query.Get("error") != "" {
		b.fail(w, r, "provider_denied")
		return
	}
	if query.Get("state") != pending.Nonce {
		b.fail(w, r, "nonce_mismatch")
		return
	}
	code := query.Get("code")
	if code == "" {
		b.fail(w, r, "missing_code")
		return
	}

	providerToken, err := b.exchangeCode(r.Context(), provider, code, pending.Verifier)
	if err != nil {
		b.fail(w, r, "exchange_failed")
		return
	}
	assertion, err := b.fetchProfile(r.Context(), provider, providerToken)
	if err != nil {
		b.fail(w, r, "profile_failed")
		return
	}

	pair, err := b.minter.CompleteFederatedLogin(r.Context(), assertion)
	if err != nil {
		b.fail(w, r, "login_failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     b.config.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(b.config.RefreshCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   b.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// The access token travels in the fragment so it never reaches any
	// server log on the redirect target.
	http.Redirect(w, r, pending.Redirect+"#access_token="+url.QueryEscape(pair.AccessToken), http.StatusFound)
}

func (b *Bridge) fail(w http.ResponseWriter, r *http.Request, reason string) {
	target := b.config.FailureURL
	if u, err := url.Parse(target); err == nil {
		q := u.Query()
		q.Set("reason", reason)
		u.RawQuery = q.Encode()
		target = u.String()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (b *Bridge) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   b.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// lookupProvider resolves the provider named by the final URL segment.
// A name that is not configured fails with [authkit.ErrUnknownProvider].
func (b *Bridge) lookupProvider(r *http.Request) (Provider, error) {
	name := path.Base(r.URL.Path)
	provider, ok := b.providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", authkit.ErrUnknownProvider, name)
	}
	return provider, nil
}

func (b *Bridge) callbackURL(provider string) string {
	return strings.TrimRight(b.config.CallbackBaseURL, "/") + "/" + provider
}

// resolveRedirect returns the requested post-login target when it
// matches the allowlist, otherwise the default target.
func (b *Bridge) resolveRedirect(requested string) string {
	if requested != "" {
		for _, allowed := range b.config.AllowedRedirects {
			if strings.HasPrefix(requested, allowed) {
				return requested
			}
		}
	}
	return b.config.AllowedRedirects[0]
}
