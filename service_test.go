package authkit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/academyshow/authkit/password"
)

// memProvider is an in-memory PrincipalProvider for tests.
type memProvider struct {
	mu        sync.Mutex
	nextID    int
	byID      map[string]PrincipalRecord
	byName    map[string]string
	byExt     map[string]string
	lookupErr error // when set, GetPrincipalByID fails with it
}

func newMemProvider() *memProvider {
	return &memProvider{
		byID:   make(map[string]PrincipalRecord),
		byName: make(map[string]string),
		byExt:  make(map[string]string),
	}
}

func extKey(provider, subject string) string { return provider + "\x00" + subject }

func (p *memProvider) GetPrincipalByUsername(_ context.Context, username string) (PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byName[username]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return p.byID[id], nil
}

func (p *memProvider) GetPrincipalByID(_ context.Context, principalID string) (PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lookupErr != nil {
		return PrincipalRecord{}, p.lookupErr
	}
	rec, ok := p.byID[principalID]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return rec, nil
}

func (p *memProvider) GetPrincipalByExternalIdentity(_ context.Context, provider, subject string) (PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byExt[extKey(provider, subject)]
	if !ok {
		return PrincipalRecord{}, ErrPrincipalNotFound
	}
	return p.byID[id], nil
}

func (p *memProvider) CreatePrincipal(_ context.Context, input CreatePrincipalInput) (PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[input.Username]; exists {
		return PrincipalRecord{}, ErrUsernameTaken
	}
	p.nextID++
	rec := PrincipalRecord{
		PrincipalID:  "p" + strconv.Itoa(p.nextID),
		Username:     input.Username,
		Roles:        append([]string(nil), input.Roles...),
		PasswordHash: input.PasswordHash,
		Status:       PrincipalActive,
	}
	p.byID[rec.PrincipalID] = rec
	p.byName[rec.Username] = rec.PrincipalID
	if input.Provider != "" {
		p.byExt[extKey(input.Provider, input.Subject)] = rec.PrincipalID
	}
	return rec, nil
}

func (p *memProvider) UpdatePasswordHash(_ context.Context, principalID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byID[principalID]
	if !ok {
		return ErrPrincipalNotFound
	}
	rec.PasswordHash = newHash
	p.byID[principalID] = rec
	return nil
}

func (p *memProvider) setStatus(principalID string, status PrincipalStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.byID[principalID]
	rec.Status = status
	p.byID[principalID] = rec
}

func (p *memProvider) setLookupErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookupErr = err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("test-secret-test-secret-test-secret")
	cfg.Token.Issuer = "authkit-test"
	// Small argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestService(t *testing.T, mutate ...func(*Config)) (*Service, *memProvider, *miniredis.Miniredis) {
	t.Helper()
	return newTestServiceWithSink(t, nil, mutate...)
}

func newTestServiceWithSink(t *testing.T, sink AuditSink, mutate ...func(*Config)) (*Service, *memProvider, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	provider := newMemProvider()
	b := New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalProvider(provider)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	svc, err := b.Build()
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	t.Cleanup(svc.Close)

	return svc, provider, mr
}

func signUpUser(t *testing.T, svc *Service, username, secret string) string {
	t.Helper()
	rec, err := svc.SignUp(context.Background(), SignUpRequest{Username: username, Secret: secret})
	if err != nil {
		t.Fatalf("sign up %s: %v", username, err)
	}
	return rec.PrincipalID
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	svc, _, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be set")
	}

	id, err := svc.Verify(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if id.PrincipalID != pid {
		t.Fatalf("principal = %q, want %q", id.PrincipalID, pid)
	}
	if !id.HasRole("user") {
		t.Fatalf("missing default role, got %v", id.Roles)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, provider, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	cases := []struct {
		name     string
		username string
		secret   string
		prep     func()
	}{
		{name: "unknown username", username: "nobody", secret: "whatever"},
		{name: "wrong secret", username: "alice", secret: "wrong"},
		{name: "empty secret", username: "alice", secret: ""},
		{name: "deleted account", username: "alice", secret: "correct horse battery",
			prep: func() { provider.setStatus(pid, PrincipalDeleted) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.prep != nil {
				tc.prep()
			}
			_, err := svc.Login(context.Background(), tc.username, tc.secret)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestLoginFederatedOnlyAccountRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CompleteFederatedLogin(context.Background(), FederatedAssertion{
		Provider: "google", Subject: "sub-1", Username: "bob",
	})
	if err != nil {
		t.Fatalf("federated login: %v", err)
	}

	_, err = svc.Login(context.Background(), "bob", "any secret at all")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSecondLoginInvalidatesFirstSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	first, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice", "correct horse battery"); err != nil {
		t.Fatalf("second login: %v", err)
	}

	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("err = %v, want ErrRefreshReuse", err)
	}
}

func TestRefreshRotatesChain(t *testing.T) {
	svc, _, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Walk the rotation chain a few steps; each step must mint a
	// verifiable access token and a usable next refresh token.
	current := pair.RefreshToken
	for i := 0; i < 5; i++ {
		next, err := svc.Refresh(context.Background(), current)
		if err != nil {
			t.Fatalf("refresh step %d: %v", i, err)
		}
		id, err := svc.Verify(context.Background(), next.AccessToken)
		if err != nil {
			t.Fatalf("verify step %d: %v", i, err)
		}
		if id.PrincipalID != pid {
			t.Fatalf("principal = %q, want %q", id.PrincipalID, pid)
		}
		current = next.RefreshToken
	}
}

func TestRefreshReuseDetected(t *testing.T) {
	svc, _, _ := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Replaying the consumed token fails but does not kill the chain.
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("replay err = %v, want ErrRefreshReuse", err)
	}
	if _, err := svc.Refresh(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("current token after replay: %v", err)
	}
}

func TestRefreshReuseRevokesWhenConfigured(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *Config) {
		cfg.Store.RevokeOnReuse = true
	})
	signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("replay err = %v, want ErrRefreshReuse", err)
	}
	if _, err := svc.Refresh(context.Background(), rotated.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("current token err = %v, want ErrRevoked", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.Refresh(context.Background(), tok); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("Refresh(%q) = %v, want ErrRefreshInvalid", tok, err)
		}
	}
}

func TestRefreshDeletedPrincipalFailsClosed(t *testing.T) {
	svc, provider, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	provider.setStatus(pid, PrincipalDeleted)
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("refresh for deleted principal = %v, want ErrRevoked", err)
	}

	// Reactivating the account does not resurrect the revoked chain.
	provider.setStatus(pid, PrincipalActive)
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("refresh after reactivation = %v, want ErrRevoked", err)
	}
}

func TestRefreshVanishedPrincipalFailsClosed(t *testing.T) {
	svc, provider, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	provider.mu.Lock()
	delete(provider.byID, pid)
	provider.mu.Unlock()

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("refresh for vanished principal = %v, want ErrRevoked", err)
	}
}

func TestRefreshProviderOutageKeepsChain(t *testing.T) {
	svc, provider, _ := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	provider.setLookupErr(errors.New("directory offline"))
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("refresh during outage = %v, want ErrStoreUnavailable", err)
	}

	// The failure happened before rotation, so the same token still works.
	provider.setLookupErr(nil)
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("refresh after recovery: %v", err)
	}
}

func TestRefreshRotatedRolesReachAccessToken(t *testing.T) {
	svc, provider, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	provider.mu.Lock()
	rec := provider.byID[pid]
	rec.Roles = append(rec.Roles, "admin")
	provider.byID[pid] = rec
	provider.mu.Unlock()

	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	id, err := svc.Verify(context.Background(), next.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !id.HasRole("admin") {
		t.Fatalf("rotated access token roles = %v, want admin included", id.Roles)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	svc, _, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(context.Background(), pid); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("refresh after logout = %v, want ErrRevoked", err)
	}

	// Idempotent: a second logout is not an error.
	if err := svc.Logout(context.Background(), pid); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestRefreshRecordExpires(t *testing.T) {
	svc, _, mr := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	mr.FastForward(testConfig().Token.RefreshTTL + time.Hour)

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) && !errors.Is(err, ErrRevoked) {
		t.Fatalf("refresh after expiry = %v, want ErrRefreshInvalid or ErrRevoked", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *Config) {
		cfg.Security.MaxLoginAttempts = 2
	})
	signUpUser(t, svc, "alice", "correct horse battery")

	ctx := WithClientIP(context.Background(), "203.0.113.9")

	for i := 0; i < 2; i++ {
		if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d = %v, want ErrInvalidCredentials", i, err)
		}
	}
	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("over-budget attempt = %v, want ErrLoginRateLimited", err)
	}
	// Even the correct secret is refused while the window is hot.
	if _, err := svc.Login(ctx, "alice", "correct horse battery"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("correct secret while limited = %v, want ErrLoginRateLimited", err)
	}
}

func TestLoginRateLimitResetsOnSuccess(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *Config) {
		cfg.Security.MaxLoginAttempts = 3
	})
	signUpUser(t, svc, "alice", "correct horse battery")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = svc.Login(ctx, "alice", "wrong")
	}
	if _, err := svc.Login(ctx, "alice", "correct horse battery"); err != nil {
		t.Fatalf("login within budget: %v", err)
	}

	// Counter was reset; the full budget is available again.
	for i := 0; i < 3; i++ {
		if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset attempt %d = %v, want ErrInvalidCredentials", i, err)
		}
	}
}

func TestRefreshRateLimited(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *Config) {
		cfg.Security.MaxRefreshAttempts = 3
	})
	signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	current := pair.RefreshToken
	for i := 0; i < 3; i++ {
		next, err := svc.Refresh(context.Background(), current)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		current = next.RefreshToken
	}
	if _, err := svc.Refresh(context.Background(), current); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("over-budget refresh = %v, want ErrRefreshRateLimited", err)
	}
}

func TestLoginLimiterOutageIsNotRateLimited(t *testing.T) {
	svc, _, mr := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	mr.Close()

	_, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("redis outage reported as rate limit: %v", err)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("login during outage = %v, want ErrStoreUnavailable", err)
	}
}

func TestRefreshLimiterOutageIsNotRateLimited(t *testing.T) {
	svc, _, mr := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	mr.Close()

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	if errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("redis outage reported as rate limit: %v", err)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("refresh during outage = %v, want ErrStoreUnavailable", err)
	}
}

func TestVerifyRejectsRefreshToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	pair, err := svc.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Verify(context.Background(), pair.RefreshToken); err == nil {
		t.Fatal("refresh token accepted as access token")
	}
}

func TestSignUpDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	_, err := svc.SignUp(context.Background(), SignUpRequest{Username: "alice", Secret: "another secret"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestSignUpDisabled(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *Config) {
		cfg.Account.SignUpEnabled = false
	})

	_, err := svc.SignUp(context.Background(), SignUpRequest{Username: "alice", Secret: "whatever12"})
	if !errors.Is(err, ErrSignUpDisabled) {
		t.Fatalf("err = %v, want ErrSignUpDisabled", err)
	}
}

func TestSignUpStripsHash(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec, err := svc.SignUp(context.Background(), SignUpRequest{Username: "alice", Secret: "correct horse battery"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if rec.PasswordHash != "" {
		t.Fatal("sign-up response leaked the password hash")
	}
}

func TestUsernameAvailable(t *testing.T) {
	svc, _, _ := newTestService(t)
	signUpUser(t, svc, "alice", "correct horse battery")

	taken, err := svc.UsernameAvailable(context.Background(), "alice")
	if err != nil || taken {
		t.Fatalf("UsernameAvailable(alice) = %v, %v; want false, nil", taken, err)
	}
	free, err := svc.UsernameAvailable(context.Background(), "bob")
	if err != nil || !free {
		t.Fatalf("UsernameAvailable(bob) = %v, %v; want true, nil", free, err)
	}
}

func TestPrincipalInfoStripsHash(t *testing.T) {
	svc, _, _ := newTestService(t)
	pid := signUpUser(t, svc, "alice", "correct horse battery")

	rec, err := svc.PrincipalInfo(context.Background(), pid)
	if err != nil {
		t.Fatalf("principal info: %v", err)
	}
	if rec.Username != "alice" || rec.PasswordHash != "" {
		t.Fatalf("record = %+v, want alice with hash stripped", rec)
	}
}

func TestFederatedLoginProvisionsOnce(t *testing.T) {
	svc, provider, _ := newTestService(t)

	assertion := FederatedAssertion{Provider: "github", Subject: "gh-42", Username: "carol"}
	first, err := svc.CompleteFederatedLogin(context.Background(), assertion)
	if err != nil {
		t.Fatalf("first federated login: %v", err)
	}
	second, err := svc.CompleteFederatedLogin(context.Background(), assertion)
	if err != nil {
		t.Fatalf("second federated login: %v", err)
	}

	idFirst, err := svc.Verify(context.Background(), first.AccessToken)
	if err != nil {
		t.Fatalf("verify first: %v", err)
	}
	idSecond, err := svc.Verify(context.Background(), second.AccessToken)
	if err != nil {
		t.Fatalf("verify second: %v", err)
	}
	if idFirst.PrincipalID != idSecond.PrincipalID {
		t.Fatalf("logins produced distinct principals: %q vs %q", idFirst.PrincipalID, idSecond.PrincipalID)
	}

	provider.mu.Lock()
	count := len(provider.byID)
	provider.mu.Unlock()
	if count != 1 {
		t.Fatalf("principal count = %d, want 1", count)
	}

	// The second login invalidated the first session's refresh token.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("stale refresh = %v, want ErrRefreshReuse", err)
	}
}

func TestFederatedLoginIncompleteAssertion(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.CompleteFederatedLogin(context.Background(), FederatedAssertion{Subject: "s"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("missing provider = %v, want ErrUnknownProvider", err)
	}
	if _, err := svc.CompleteFederatedLogin(context.Background(), FederatedAssertion{Provider: "google"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing subject = %v, want ErrUnauthorized", err)
	}
}

func TestFederatedLoginDeletedPrincipal(t *testing.T) {
	svc, provider, _ := newTestService(t)

	assertion := FederatedAssertion{Provider: "google", Subject: "sub-9", Username: "dave"}
	if _, err := svc.CompleteFederatedLogin(context.Background(), assertion); err != nil {
		t.Fatalf("provisioning login: %v", err)
	}

	provider.mu.Lock()
	pid := provider.byExt[extKey("google", "sub-9")]
	provider.mu.Unlock()
	provider.setStatus(pid, PrincipalDeleted)

	if _, err := svc.CompleteFederatedLogin(context.Background(), assertion); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("deleted principal = %v, want ErrInvalidCredentials", err)
	}
}

func TestMetricsCountFlows(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	signUpUser(t, svc, "alice", "correct horse battery")

	if _, err := svc.Login(context.Background(), "alice", "correct horse battery"); err != nil {
		t.Fatalf("login: %v", err)
	}
	_, _ = svc.Login(context.Background(), "alice", "wrong")

	snap := svc.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success = %d, want 1", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure = %d, want 1", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSignUpSuccess] != 1 {
		t.Fatalf("sign up success = %d, want 1", snap.Counters[MetricSignUpSuccess])
	}
	if snap.Counters[MetricTokenPairIssued] != 1 {
		t.Fatalf("pairs issued = %d, want 1", snap.Counters[MetricTokenPairIssued])
	}
}

func TestPasswordUpgradeOnLogin(t *testing.T) {
	svc, provider, _ := newTestService(t, func(cfg *Config) {
		cfg.Password.Memory = 16 * 1024
		cfg.Password.UpgradeOnLogin = true
	})

	// Seed a principal hashed with weaker parameters than the service's.
	weak, err := newWeakHash("correct horse battery")
	if err != nil {
		t.Fatalf("weak hash: %v", err)
	}
	rec, err := provider.CreatePrincipal(context.Background(), CreatePrincipalInput{
		Username:     "alice",
		PasswordHash: weak,
		Roles:        []string{"user"},
	})
	if err != nil {
		t.Fatalf("seed principal: %v", err)
	}

	if _, err := svc.Login(context.Background(), "alice", "correct horse battery"); err != nil {
		t.Fatalf("login: %v", err)
	}

	after, err := provider.GetPrincipalByID(context.Background(), rec.PrincipalID)
	if err != nil {
		t.Fatalf("reload principal: %v", err)
	}
	if after.PasswordHash == weak {
		t.Fatal("hash was not upgraded on login")
	}
	if _, err := svc.Login(context.Background(), "alice", "correct horse battery"); err != nil {
		t.Fatalf("login with upgraded hash: %v", err)
	}
}

func newWeakHash(secret string) (string, error) {
	h, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return "", err
	}
	return h.Hash(secret)
}

func TestServiceNotReady(t *testing.T) {
	var svc *Service
	if _, err := svc.Login(context.Background(), "a", "b"); !errors.Is(err, ErrServiceNotReady) {
		t.Fatalf("nil service login = %v, want ErrServiceNotReady", err)
	}
	if _, err := svc.Refresh(context.Background(), "x"); !errors.Is(err, ErrServiceNotReady) {
		t.Fatalf("nil service refresh = %v, want ErrServiceNotReady", err)
	}
	if err := svc.Logout(context.Background(), "p"); !errors.Is(err, ErrServiceNotReady) {
		t.Fatalf("nil service logout = %v, want ErrServiceNotReady", err)
	}
}

func TestBuilderValidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if _, err := New().WithConfig(testConfig()).WithPrincipalProvider(newMemProvider()).Build(); err == nil {
		t.Fatal("build without redis succeeded")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(client).Build(); err == nil {
		t.Fatal("build without principal provider succeeded")
	}

	bad := testConfig()
	bad.Token.PrivateKey = nil
	if _, err := New().WithConfig(bad).WithRedis(client).WithPrincipalProvider(newMemProvider()).Build(); err == nil {
		t.Fatal("build with missing signing key succeeded")
	}

	b := New().WithConfig(testConfig()).WithRedis(client).WithPrincipalProvider(newMemProvider())
	svc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(svc.Close)
	if _, err := b.Build(); err == nil {
		t.Fatal("builder reuse succeeded")
	}
}

func ExampleService_Login() {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("example-secret-example-secret-32")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	svc, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalProvider(newMemProvider()).
		Build()
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpRequest{Username: "alice", Secret: "correct horse battery"}); err != nil {
		panic(err)
	}
	pair, err := svc.Login(ctx, "alice", "correct horse battery")
	if err != nil {
		panic(err)
	}
	id, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil {
		panic(err)
	}
	fmt.Println(id.Roles)
	// Output: [user]
}
