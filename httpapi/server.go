package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus"
	"github.com/portunus-id/portunus/middleware"
)

// Config wires the API.
type Config struct {
	Engine  *portunus.Engine
	Log     *zap.Logger
	Cookies CookieConfig

	// AllowedOrigins may use one "*" wildcard per entry, e.g.
	// "https://*.example.com".
	AllowedOrigins []string
	Throttle       middleware.ThrottleConfig
	TrustProxy     bool
	HSTS           bool
}

// API is the HTTP surface of one engine.
type API struct {
	engine  *portunus.Engine
	log     *zap.Logger
	cookies CookieConfig
	outcome middleware.OutcomeConfig
	router  *mux.Router
	handler http.Handler
}

type guard int

const (
	public guard = iota
	authenticated
	staffOnly
)

// New builds the router and the middleware stack around it.
func New(cfg Config) (*API, error) {
	if cfg.Engine == nil {
		return nil, errors.New("httpapi: engine required")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	cookies := cfg.Cookies
	if cookies.SessionName == "" {
		cookies = DefaultCookies()
	}

	a := &API{
		engine:  cfg.Engine,
		log:     log,
		cookies: cookies,
		outcome: middleware.OutcomeConfig{
			Log:        log.Named("http"),
			Observer:   cfg.Engine,
			TrustProxy: cfg.TrustProxy,
		},
		router: mux.NewRouter(),
	}
	a.routes()

	throttle, err := middleware.NewThrottle(middleware.ThrottleConfig{
		RequestsPerSecond: cfg.Throttle.RequestsPerSecond,
		Burst:             cfg.Throttle.Burst,
		MaxClients:        cfg.Throttle.MaxClients,
		TrustProxy:        cfg.TrustProxy,
	})
	if err != nil {
		return nil, err
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.DefaultCSRFHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	})

	var h http.Handler = a.router
	h = throttle.Middleware(a.deny)(h)
	h = corsHandler.Handler(h)
	h = middleware.SecurityHeaders(cfg.HSTS)(h)
	a.handler = otelhttp.NewHandler(h, "portunus",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
	return a, nil
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// route composes a handler as LogOutcome(RequireMethod(guards(h))).
func (a *API) route(path, event string, g guard, csrf bool, h http.HandlerFunc, methods ...string) {
	var handler http.Handler = h
	if csrf {
		handler = middleware.RequireCSRF(a.cookies.CSRFName, middleware.DefaultCSRFHeader, a.deny)(a.sessionCSRF(handler))
	}
	switch g {
	case staffOnly:
		handler = middleware.RequireAuth(a.engine, a.deny)(middleware.RequireStaff(a.deny)(handler))
	case authenticated:
		handler = middleware.RequireAuth(a.engine, a.deny)(handler)
	}
	handler = middleware.RequireMethod(methods...)(handler)
	handler = middleware.LogOutcome(a.outcome, event)(handler)
	a.router.Handle(path, handler)
}

func (a *API) routes() {
	post, get, del := http.MethodPost, http.MethodGet, http.MethodDelete

	a.route("/auth/register", "register", public, false, a.register, post)
	a.route("/auth/login", "login", public, false, a.login, post)
	a.route("/auth/login/mfa", "login_mfa", public, false, a.loginMfa, post)
	a.route("/auth/logout", "logout", public, true, a.logout, post)
	a.route("/auth/token/refresh", "refresh", public, true, a.refresh, post)
	a.route("/auth/me", "current_user", authenticated, false, a.me, get)
	a.route("/auth/password/change", "change_password", authenticated, false, a.changePassword, post)
	a.route("/auth/password/reset", "password_reset_request", public, false, a.requestPasswordReset, post)
	a.route("/auth/password/reset/complete", "password_reset_complete", public, false, a.completePasswordReset, post)
	a.route("/auth/email/change", "change_email_request", authenticated, false, a.requestEmailChange, post)
	a.route("/auth/email/change/confirm", "change_email_confirm", public, false, a.confirmEmailChange, post)
	a.route("/auth/account", "delete_account", authenticated, false, a.deleteAccount, del)

	a.route("/mfa/methods", "mfa_methods", authenticated, false, a.mfaMethods, get)
	a.route("/mfa/{method}/activate", "mfa_activate", authenticated, false, a.mfaActivate, post)
	a.route("/mfa/{method}/activate/confirm", "mfa_activate_confirm", authenticated, false, a.mfaActivateConfirm, post)
	a.route("/mfa/{method}/deactivate", "mfa_deactivate", authenticated, false, a.mfaDeactivate, post)
	a.route("/mfa/{method}/code", "mfa_send_code", authenticated, false, a.mfaSendCode, post)
	a.route("/mfa/{method}/code/token", "mfa_send_code_token", public, false, a.mfaSendCodeWithToken, post)

	a.route("/admin/users", "admin_users", staffOnly, false, a.adminUsers, get, post)
	a.route("/admin/users/{id}", "admin_user", staffOnly, false, a.adminUser, get, del)

	a.route("/healthz", "healthz", public, false, a.healthz, get)
	a.router.Handle("/metrics", middleware.RequireMethod(get)(a.engine.MetricsHandler()))

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		a.fail(w, http.StatusNotFound, apiError{Code: "not_found", Message: "Not found."})
	})
}

// sessionCSRF additionally binds the CSRF header to the token stored with
// the server-side session, so a cookie planted by a sibling subdomain does
// not pass. Unknown sessions fall through to the handler.
func (a *API) sessionCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := a.cookies.sessionID(r)
		if sid == "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := middleware.BearerToken(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		want, err := a.engine.SessionCSRF(r.Context(), sid)
		switch {
		case errors.Is(err, portunus.ErrInvalidToken):
		case err != nil:
			a.failErr(w, r, err)
			return
		case subtle.ConstantTimeCompare([]byte(want), []byte(r.Header.Get(middleware.DefaultCSRFHeader))) != 1:
			a.deny(w, r, http.StatusForbidden, middleware.ErrCSRF)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	rtt, err := a.engine.Ping(ctx)
	if err != nil {
		a.failErr(w, r, err)
		return
	}
	a.ok(w, fields{"redis_rtt_ms": rtt.Milliseconds()})
}
