package federated

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/academyshow/authkit"
)

type fakeMinter struct {
	assertion authkit.FederatedAssertion
	pair      *authkit.TokenPair
	err       error
}

func (f *fakeMinter) CompleteFederatedLogin(_ context.Context, assertion authkit.FederatedAssertion) (*authkit.TokenPair, error) {
	f.assertion = assertion
	if f.err != nil {
		return nil, f.err
	}
	return f.pair, nil
}

// fakeProvider is an httptest OAuth2 provider with token and profile
// endpoints.
type fakeProvider struct {
	srv         *httptest.Server
	profile     map[string]any
	wantCode    string
	gotVerifier string
	tokenStatus int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{
		profile:     map[string]any{"sub": "ext-1", "email": "alice@example.com"},
		wantCode:    "good-code",
		tokenStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fp.gotVerifier = r.PostForm.Get("code_verifier")
		if fp.tokenStatus != http.StatusOK {
			http.Error(w, "denied", fp.tokenStatus)
			return
		}
		if r.PostForm.Get("code") != fp.wantCode {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "provider-token"})
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fp.profile)
	})
	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) provider() Provider {
	return Provider{
		Name:          "testprov",
		ClientID:      "client-1",
		ClientSecret:  "secret-1",
		AuthURL:       fp.srv.URL + "/authorize",
		TokenURL:      fp.srv.URL + "/token",
		ProfileURL:    fp.srv.URL + "/profile",
		Scopes:        []string{"profile"},
		SubjectField:  "sub",
		UsernameField: "email",
		EmailField:    "email",
	}
}

func newTestBridge(t *testing.T, fp *fakeProvider, minter SessionMinter) *Bridge {
	t.Helper()
	b, err := New(Config{
		Providers:        []Provider{fp.provider()},
		StateKey:         []byte("0123456789abcdef0123456789abcdef"),
		CallbackBaseURL:  "https://app.example.com/oauth2/code",
		AllowedRedirects: []string{"https://app.example.com/"},
		FailureURL:       "https://app.example.com/login-failed",
		RefreshCookieTTL: time.Hour,
	}, minter)
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return b
}

// begin runs the begin leg and returns the state cookie plus the nonce
// and code the provider would send back.
func begin(t *testing.T, b *Bridge) (*http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorization/testprov", nil)
	rec := httptest.NewRecorder()
	b.Begin(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("begin status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c
		}
	}
	if state == nil {
		t.Fatal("no state cookie set")
	}
	return state, loc.Query().Get("state")
}

func callback(b *Bridge, cookie *http.Cookie, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/oauth2/code/testprov?"+query, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	b.Callback(rec, req)
	return rec
}

func failureReason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasPrefix(loc.Path, "/login-failed") {
		t.Fatalf("redirected to %q, want failure URL", loc.String())
	}
	return loc.Query().Get("reason")
}

func TestBeginRedirectsWithPKCE(t *testing.T) {
	fp := newFakeProvider(t)
	b := newTestBridge(t, fp, &fakeMinter{pair: &authkit.TokenPair{}})

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorization/testprov", nil)
	rec := httptest.NewRecorder()
	b.Begin(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := loc.Query()
	if q.Get("client_id") != "client-1" {
		t.Fatalf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		t.Fatalf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
		t.Fatal("missing PKCE challenge")
	}
	if q.Get("state") == "" {
		t.Fatal("missing state parameter")
	}
	if q.Get("redirect_uri") != "https://app.example.com/oauth2/code/testprov" {
		t.Fatalf("redirect_uri = %q", q.Get("redirect_uri"))
	}
}

func TestBeginUnknownProvider(t *testing.T) {
	fp := newFakeProvider(t)
	b := newTestBridge(t, fp, &fakeMinter{})

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorization/nope", nil)
	rec := httptest.NewRecorder()
	b.Begin(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	if _, err := b.lookupProvider(req); !errors.Is(err, authkit.ErrUnknownProvider) {
		t.Fatalf("lookup err = %v, want ErrUnknownProvider", err)
	}
}

func TestCallbackUnknownProvider(t *testing.T) {
	fp := newFakeProvider(t)
	minter := &fakeMinter{pair: &authkit.TokenPair{AccessToken: "at", RefreshToken: "rt"}}
	b := newTestBridge(t, fp, minter)

	cookie, nonce := begin(t, b)
	req := httptest.NewRequest(http.MethodGet, "/oauth2/code/nope?state="+url.QueryEscape(nonce)+"&code=good-code", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	b.Callback(rec, req)

	if got := failureReason(t, rec); got != "unknown_provider" {
		t.Fatalf("reason = %q, want unknown_provider", got)
	}
	if minter.assertion.Provider != "" {
		t.Fatal("minter reached for unknown provider")
	}
}

func TestCallbackCompletesLogin(t *testing.T) {
	fp := newFakeProvider(t)
	minter := &fakeMinter{pair: &authkit.TokenPair{AccessToken: "at", RefreshToken: "rt"}}
	b := newTestBridge(t, fp, minter)

	cookie, nonce := begin(t, b)
	rec := callback(b, cookie, "state="+url.QueryEscape(nonce)+"&code=good-code")

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://app.example.com/") || !strings.Contains(loc, "#access_token=at") {
		t.Fatalf("location = %q", loc)
	}

	if minter.assertion.Provider != "testprov" || minter.assertion.Subject != "ext-1" {
		t.Fatalf("assertion = %+v", minter.assertion)
	}
	if minter.assertion.Email != "alice@example.com" {
		t.Fatalf("assertion email = %q", minter.assertion.Email)
	}
	if fp.gotVerifier == "" {
		t.Fatal("exchange carried no PKCE verifier")
	}

	var sawRefresh, clearedState bool
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case "refresh_token":
			sawRefresh = c.Value == "rt" && c.HttpOnly
		case stateCookieName:
			clearedState = c.MaxAge < 0
		}
	}
	if !sawRefresh {
		t.Fatal("refresh cookie missing or not HttpOnly")
	}
	if !clearedState {
		t.Fatal("state cookie not cleared")
	}
}

func TestCallbackFailures(t *testing.T) {
	fp := newFakeProvider(t)

	tampered := func(c *http.Cookie) *http.Cookie {
		out := *c
		mutated := []byte(out.Value)
		if mutated[0] == 'A' {
			mutated[0] = 'B'
		} else {
			mutated[0] = 'A'
		}
		out.Value = string(mutated)
		return &out
	}

	cases := []struct {
		name  string
		setup func(b *Bridge) (*http.Cookie, string)
		want  string
	}{
		{
			name:  "missing cookie",
			setup: func(b *Bridge) (*http.Cookie, string) { return nil, "state=s&code=c" },
			want:  "missing_state",
		},
		{
			name: "tampered cookie",
			setup: func(b *Bridge) (*http.Cookie, string) {
				cookie, nonce := begin(t, b)
				return tampered(cookie), "state=" + url.QueryEscape(nonce) + "&code=good-code"
			},
			want: "bad_state",
		},
		{
			name: "nonce mismatch",
			setup: func(b *Bridge) (*http.Cookie, string) {
				cookie, _ := begin(t, b)
				return cookie, "state=forged&code=good-code"
			},
			want: "nonce_mismatch",
		},
		{
			name: "provider denied",
			setup: func(b *Bridge) (*http.Cookie, string) {
				cookie, nonce := begin(t, b)
				return cookie, "state=" + url.QueryEscape(nonce) + "&error=access_denied"
			},
			want: "provider_denied",
		},
		{
			name: "missing code",
			setup: func(b *Bridge) (*http.Cookie, string) {
				cookie, nonce := begin(t, b)
				return cookie, "state=" + url.QueryEscape(nonce)
			},
			want: "missing_code",
		},
		{
			name: "bad code",
			setup: func(b *Bridge) (*http.Cookie, string) {
				cookie, nonce := begin(t, b)
				return cookie, "state=" + url.QueryEscape(nonce) + "&code=wrong-code"
			},
			want: "exchange_failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			minter := &fakeMinter{pair: &authkit.TokenPair{AccessToken: "at", RefreshToken: "rt"}}
			b := newTestBridge(t, fp, minter)
			cookie, query := tc.setup(b)

			rec := callback(b, cookie, query)
			if got := failureReason(t, rec); got != tc.want {
				t.Fatalf("reason = %q, want %q", got, tc.want)
			}
			if minter.assertion.Provider != "" && tc.want != "login_failed" {
				t.Fatal("minter reached on a failure path")
			}
			// Cookie cleared on every outcome.
			var cleared bool
			for _, c := range rec.Result().Cookies() {
				if c.Name == stateCookieName && c.MaxAge < 0 {
					cleared = true
				}
			}
			if !cleared {
				t.Fatal("state cookie not cleared on failure")
			}
		})
	}
}

func TestCallbackExpiredState(t *testing.T) {
	fp := newFakeProvider(t)
	b := newTestBridge(t, fp, &fakeMinter{pair: &authkit.TokenPair{}})

	cookie, nonce := begin(t, b)
	b.now = func() time.Time { return time.Now().Add(time.Hour) }

	rec := callback(b, cookie, "state="+url.QueryEscape(nonce)+"&code=good-code")
	if got := failureReason(t, rec); got != "bad_state" {
		t.Fatalf("reason = %q, want bad_state", got)
	}
}

func TestCallbackMinterFailure(t *testing.T) {
	fp := newFakeProvider(t)
	b := newTestBridge(t, fp, &fakeMinter{err: errors.New("backend down")})

	cookie, nonce := begin(t, b)
	rec := callback(b, cookie, "state="+url.QueryEscape(nonce)+"&code=good-code")
	if got := failureReason(t, rec); got != "login_failed" {
		t.Fatalf("reason = %q, want login_failed", got)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" && c.Value != "" {
			t.Fatal("refresh cookie set on failed login")
		}
	}
}

func TestNumericSubjectRendering(t *testing.T) {
	fp := newFakeProvider(t)
	fp.profile = map[string]any{
		"id":    float64(4211234567),
		"login": "carol",
	}
	p := fp.provider()
	p.SubjectField = "id"
	p.UsernameField = "login"
	p.EmailField = ""

	minter := &fakeMinter{pair: &authkit.TokenPair{AccessToken: "at", RefreshToken: "rt"}}
	b := newTestBridge(t, fp, minter)
	b.providers["testprov"] = p

	cookie, nonce := begin(t, b)
	rec := callback(b, cookie, "state="+url.QueryEscape(nonce)+"&code=good-code")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if minter.assertion.Subject != "4211234567" {
		t.Fatalf("subject = %q, want 4211234567", minter.assertion.Subject)
	}
	if minter.assertion.Username != "carol" {
		t.Fatalf("username = %q, want carol", minter.assertion.Username)
	}
}

func TestResolveRedirectAllowlist(t *testing.T) {
	fp := newFakeProvider(t)
	b := newTestBridge(t, fp, &fakeMinter{})

	if got := b.resolveRedirect("https://app.example.com/dashboard"); got != "https://app.example.com/dashboard" {
		t.Fatalf("allowed redirect = %q", got)
	}
	if got := b.resolveRedirect("https://evil.example.net/"); got != "https://app.example.com/" {
		t.Fatalf("disallowed redirect = %q, want default", got)
	}
	if got := b.resolveRedirect(""); got != "https://app.example.com/" {
		t.Fatalf("empty redirect = %q, want default", got)
	}
}

func TestPendingRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	now := time.Now()

	p := pendingAuthorization{
		Provider: "google",
		Redirect: "https://app.example.com/",
		Nonce:    "n1",
		Verifier: "v1",
		Expires:  now.Add(time.Minute).Unix(),
	}
	encoded, err := encodePending(key, p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := decodePending(key, encoded, now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != p {
		t.Fatalf("decoded = %+v, want %+v", decoded, p)
	}

	if _, err := decodePending([]byte("another-key-another-key-another-"), encoded, now); !errors.Is(err, errBadState) {
		t.Fatalf("wrong key err = %v, want errBadState", err)
	}
	if _, err := decodePending(key, encoded, now.Add(2*time.Minute)); !errors.Is(err, errBadState) {
		t.Fatalf("expired err = %v, want errBadState", err)
	}
	for _, bad := range []string{"", "nodot", "a.b", encoded + "x"} {
		if _, err := decodePending(key, bad, now); !errors.Is(err, errBadState) {
			t.Fatalf("decode(%q) err = %v, want errBadState", bad, err)
		}
	}
}
