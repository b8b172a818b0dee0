// Command authd runs the authentication endpoints as a standalone
// development server: httpauth routes, a Prometheus metrics endpoint,
// and a health probe, backed by Redis (or an embedded miniredis when
// no address is configured) and an in-memory principal provider.
//
// Production deployments embed the authkit packages directly and
// supply their own PrincipalProvider; authd exists for local
// development and integration testing against the real HTTP surface.
//
// Configuration is environment-driven:
//
//	AUTHD_ADDR            listen address (default :8080)
//	AUTHD_REDIS_ADDR      redis address; empty starts embedded miniredis
//	AUTHD_SIGNING_METHOD  hs256 or ed25519 (default hs256)
//	AUTHD_SIGNING_KEY     base64url signing key (required)
//	AUTHD_PUBLIC_KEY      base64url verify key (ed25519 only)
//	AUTHD_ISSUER          token issuer claim
//	AUTHD_ACCESS_TTL      access token lifetime (default 5m)
//	AUTHD_REFRESH_TTL     refresh token lifetime (default 168h)
//	AUTHD_SEED_USERNAME   optional principal seeded at startup
//	AUTHD_SEED_PASSWORD   secret for the seeded principal
//	AUTHD_METRICS         expose /metrics (default true)
//	AUTHD_AUDIT_STDOUT    emit audit events as JSON lines on stdout
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/academyshow/authkit"
	"github.com/academyshow/authkit/httpauth"
	"github.com/academyshow/authkit/metrics/export/prometheus"
)

type config struct {
	Addr          string        `env:"AUTHD_ADDR" envDefault:":8080"`
	RedisAddr     string        `env:"AUTHD_REDIS_ADDR"`
	SigningMethod string        `env:"AUTHD_SIGNING_METHOD" envDefault:"hs256"`
	SigningKey    string        `env:"AUTHD_SIGNING_KEY,required"`
	PublicKey     string        `env:"AUTHD_PUBLIC_KEY"`
	Issuer        string        `env:"AUTHD_ISSUER" envDefault:"authd"`
	AccessTTL     time.Duration `env:"AUTHD_ACCESS_TTL" envDefault:"5m"`
	RefreshTTL    time.Duration `env:"AUTHD_REFRESH_TTL" envDefault:"168h"`
	SeedUsername  string        `env:"AUTHD_SEED_USERNAME"`
	SeedPassword  string        `env:"AUTHD_SEED_PASSWORD"`
	Metrics       bool          `env:"AUTHD_METRICS" envDefault:"true"`
	AuditStdout   bool          `env:"AUTHD_AUDIT_STDOUT"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal("authd: ", err)
	}

	client, cleanup, err := connectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("authd: ", err)
	}
	defer cleanup()

	svc, err := buildService(cfg, client)
	if err != nil {
		log.Fatal("authd: ", err)
	}
	defer svc.Close()

	if cfg.SeedUsername != "" {
		if _, err := svc.SignUp(context.Background(), authkit.SignUpRequest{
			Username: cfg.SeedUsername,
			Secret:   cfg.SeedPassword,
		}); err != nil && !errors.Is(err, authkit.ErrUsernameTaken) {
			log.Fatal("authd: seed principal: ", err)
		}
	}

	handler, err := httpauth.New(svc, httpauth.Config{
		RefreshCookieTTL: cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatal("authd: ", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/auth/", handler.Routes())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ping(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Metrics {
		mux.Handle("GET /metrics", prometheus.NewExporter(svc).Handler())
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("authd: listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("authd: ", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Print("authd: shutdown: ", err)
	}
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		log.Printf("authd: using embedded miniredis at %s", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	return client, func() { _ = client.Close() }, nil
}

func buildService(cfg config, client redis.UniversalClient) (*authkit.Service, error) {
	signingKey, err := base64.RawURLEncoding.DecodeString(cfg.SigningKey)
	if err != nil {
		return nil, errors.New("AUTHD_SIGNING_KEY must be base64url")
	}

	kitCfg := authkit.DefaultConfig()
	kitCfg.Token.SigningMethod = cfg.SigningMethod
	kitCfg.Token.PrivateKey = signingKey
	kitCfg.Token.Issuer = cfg.Issuer
	kitCfg.Token.AccessTTL = cfg.AccessTTL
	kitCfg.Token.RefreshTTL = cfg.RefreshTTL
	kitCfg.Metrics.Enabled = cfg.Metrics
	kitCfg.Metrics.EnableLatencyHistograms = cfg.Metrics
	kitCfg.Audit.Enabled = cfg.AuditStdout

	if cfg.PublicKey != "" {
		publicKey, err := base64.RawURLEncoding.DecodeString(cfg.PublicKey)
		if err != nil {
			return nil, errors.New("AUTHD_PUBLIC_KEY must be base64url")
		}
		kitCfg.Token.PublicKey = publicKey
	}

	b := authkit.New().
		WithConfig(kitCfg).
		WithRedis(client).
		WithPrincipalProvider(newMemoryProvider())
	if cfg.AuditStdout {
		b = b.WithAuditSink(authkit.NewJSONWriterSink(os.Stdout))
	}
	return b.Build()
}

// memoryProvider is the development principal store. Nothing survives
// a restart.
type memoryProvider struct {
	mu     sync.Mutex
	nextID int
	byID   map[string]authkit.PrincipalRecord
	byName map[string]string
	byExt  map[string]string
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		byID:   make(map[string]authkit.PrincipalRecord),
		byName: make(map[string]string),
		byExt:  make(map[string]string),
	}
}

func (p *memoryProvider) GetPrincipalByUsername(_ context.Context, username string) (authkit.PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byName[username]
	if !ok {
		return authkit.PrincipalRecord{}, authkit.ErrPrincipalNotFound
	}
	return p.byID[id], nil
}

func (p *memoryProvider) GetPrincipalByID(_ context.Context, principalID string) (authkit.PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byID[principalID]
	if !ok {
		return authkit.PrincipalRecord{}, authkit.ErrPrincipalNotFound
	}
	return rec, nil
}

func (p *memoryProvider) GetPrincipalByExternalIdentity(_ context.Context, provider, subject string) (authkit.PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byExt[provider+"\x00"+subject]
	if !ok {
		return authkit.PrincipalRecord{}, authkit.ErrPrincipalNotFound
	}
	return p.byID[id], nil
}

func (p *memoryProvider) CreatePrincipal(_ context.Context, input authkit.CreatePrincipalInput) (authkit.PrincipalRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byName[input.Username]; exists {
		return authkit.PrincipalRecord{}, authkit.ErrUsernameTaken
	}
	p.nextID++
	rec := authkit.PrincipalRecord{
		PrincipalID:  "dev-" + strconv.Itoa(p.nextID),
		Username:     input.Username,
		Roles:        input.Roles,
		PasswordHash: input.PasswordHash,
		Status:       authkit.PrincipalActive,
	}
	p.byID[rec.PrincipalID] = rec
	p.byName[rec.Username] = rec.PrincipalID
	if input.Provider != "" {
		p.byExt[input.Provider+"\x00"+input.Subject] = rec.PrincipalID
	}
	return rec, nil
}

func (p *memoryProvider) UpdatePasswordHash(_ context.Context, principalID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byID[principalID]
	if !ok {
		return authkit.ErrPrincipalNotFound
	}
	rec.PasswordHash = newHash
	p.byID[principalID] = rec
	return nil
}
