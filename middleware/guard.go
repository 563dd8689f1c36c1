package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/portunus-id/portunus"
)

type userContextKey struct{}
type claimsContextKey struct{}

// Authenticator resolves an access token to its user.
type Authenticator interface {
	CurrentUser(ctx context.Context, accessToken string) (portunus.User, *portunus.Claims, error)
}

// DenyFunc writes a rejection. status is 401, 403, 405, 429 or 503.
type DenyFunc func(w http.ResponseWriter, r *http.Request, status int, err error)

// PlainDeny writes the status text.
func PlainDeny(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	http.Error(w, http.StatusText(status), status)
}

func orPlain(deny DenyFunc) DenyFunc {
	if deny == nil {
		return PlainDeny
	}
	return deny
}

// UserFromContext returns the user set by [RequireAuth].
func UserFromContext(ctx context.Context) (portunus.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(portunus.User)
	return u, ok
}

// ClaimsFromContext returns the access token claims set by [RequireAuth].
func ClaimsFromContext(ctx context.Context) (*portunus.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*portunus.Claims)
	return c, ok
}

// WithUser attaches an authenticated user to ctx. Tests and handlers that
// authenticate by other means use it.
func WithUser(ctx context.Context, user portunus.User, claims *portunus.Claims) context.Context {
	ctx = context.WithValue(ctx, userContextKey{}, user)
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// RequireAuth rejects requests without a valid bearer access token with 401.
func RequireAuth(auth Authenticator, deny DenyFunc) func(http.Handler) http.Handler {
	deny = orPlain(deny)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				deny(w, r, http.StatusUnauthorized, portunus.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				deny(w, r, http.StatusUnauthorized, portunus.ErrInvalidToken)
				return
			}

			user, claims, err := auth.CurrentUser(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, portunus.ErrBackend) {
					status = http.StatusServiceUnavailable
				}
				deny(w, r, status, err)
				return
			}

			NoteUser(r.Context(), user.Email)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, claims)))
		})
	}
}

// RequireStaff must run inside RequireAuth. Non-staff users get 403.
func RequireStaff(deny DenyFunc) func(http.Handler) http.Handler {
	deny = orPlain(deny)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				deny(w, r, http.StatusUnauthorized, portunus.ErrInvalidToken)
				return
			}
			if !user.IsStaff && !user.IsSuperuser {
				deny(w, r, http.StatusForbidden, portunus.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
