package httpauth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/academyshow/authkit"
	"github.com/academyshow/authkit/middleware"
)

// Config configures the HTTP surface.
type Config struct {
	// RefreshCookieName defaults to "refresh_token".
	RefreshCookieName string

	// RefreshCookieTTL bounds the refresh cookie lifetime; it should
	// match the orchestrator's refresh TTL.
	RefreshCookieTTL time.Duration

	// CookiePath defaults to "/auth" so the refresh cookie is only
	// sent to these endpoints.
	CookiePath string

	// CookieSecure marks the refresh cookie Secure.
	CookieSecure bool

	// TrustForwardedFor reads the client IP from X-Forwarded-For.
	// Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool
}

// Handler serves the authentication endpoints.
type Handler struct {
	svc    *authkit.Service
	config Config
}

// New builds a [Handler] around a ready service.
func New(svc *authkit.Service, cfg Config) (*Handler, error) {
	if svc == nil {
		return nil, authkit.ErrServiceNotReady
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "refresh_token"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/auth"
	}
	return &Handler{svc: svc, config: cfg}, nil
}

// Routes returns the endpoint mux. Authenticated routes are wrapped in
// the verification filter and auth gate.
func (h *Handler) Routes() http.Handler {
	authed := func(fn http.HandlerFunc) http.Handler {
		return middleware.Authenticate(h.svc)(middleware.RequireAuth(fn))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("GET /auth/refresh", h.refresh)
	mux.Handle("POST /auth/logout", authed(h.logout))
	mux.Handle("GET /auth/user-info", authed(h.userInfo))
	mux.HandleFunc("POST /auth/sign-up", h.signUp)
	mux.HandleFunc("POST /auth/sign-up/username-check", h.usernameCheck)
	return mux
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAuthFailure(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "authentication failed"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
		return
	}

	ctx := authkit.WithClientIP(r.Context(), h.clientIP(r))
	pair, err := h.svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authkit.ErrLoginRateLimited):
			writeJSON(w, http.StatusTooManyRequests, envelope{Success: false, Error: "too many attempts"})
		case errors.Is(err, authkit.ErrStoreUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "service unavailable"})
		default:
			// Uniform failure: no unknown-user vs wrong-secret distinction.
			writeAuthFailure(w)
		}
		return
	}

	h.writePair(w, pair)
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	presented := h.refreshTokenFrom(r)
	if presented == "" {
		writeAuthFailure(w)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), presented)
	if err != nil {
		switch {
		case errors.Is(err, authkit.ErrRefreshRateLimited):
			writeJSON(w, http.StatusTooManyRequests, envelope{Success: false, Error: "too many attempts"})
		case errors.Is(err, authkit.ErrStoreUnavailable):
			// Transient: the presented token was not consumed, keep the cookie.
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "service unavailable"})
		default:
			h.clearRefreshCookie(w)
			writeAuthFailure(w)
		}
		return
	}

	h.writePair(w, pair)
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeAuthFailure(w)
		return
	}

	if err := h.svc.Logout(r.Context(), id.PrincipalID); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "service unavailable"})
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *Handler) userInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeAuthFailure(w)
		return
	}

	rec, err := h.svc.PrincipalInfo(r.Context(), id.PrincipalID)
	if err != nil {
		writeAuthFailure(w)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"principalId": rec.PrincipalID,
		"username":    rec.Username,
		"roles":       rec.Roles,
	}})
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
		return
	}

	rec, err := h.svc.SignUp(r.Context(), authkit.SignUpRequest{
		Username: req.Username,
		Secret:   req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, authkit.ErrUsernameTaken):
			writeJSON(w, http.StatusConflict, envelope{Success: false, Error: "username taken"})
		case errors.Is(err, authkit.ErrSignUpDisabled):
			writeJSON(w, http.StatusForbidden, envelope{Success: false, Error: "sign-up disabled"})
		case errors.Is(err, authkit.ErrInvalidCredentials):
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
		default:
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "sign-up failed"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: map[string]any{
		"principalId": rec.PrincipalID,
		"username":    rec.Username,
	}})
}

func (h *Handler) usernameCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
		return
	}

	available, err := h.svc.UsernameAvailable(r.Context(), req.Username)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "service unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]bool{"available": available}})
}

// writePair puts the access token in the Authorization response header
// and the refresh token in the HttpOnly cookie.
func (h *Handler) writePair(w http.ResponseWriter, pair *authkit.TokenPair) {
	w.Header().Set("Authorization", "Bearer "+pair.AccessToken)
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     h.config.CookiePath,
		MaxAge:   int(h.config.RefreshCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.RefreshCookieName,
		Value:    "",
		Path:     h.config.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFrom prefers the cookie; the X-Refresh-Token header is
// the fallback for non-browser clients.
func (h *Handler) refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(h.config.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Refresh-Token")
}

func (h *Handler) clientIP(r *http.Request) string {
	if h.config.TrustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
