package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

const (
	DefaultCSRFCookie = "csrftoken"
	DefaultCSRFHeader = "X-CSRFToken"
)

// ErrCSRF is passed to the DenyFunc on a failed double-submit check.
var ErrCSRF = errors.New("CSRF token missing or incorrect")

// RequireCSRF enforces the double-submit check on unsafe requests that
// authenticate by cookie: the CSRF cookie must equal the header. Requests
// carrying a bearer token are exempt because a browser never attaches one
// on its own.
func RequireCSRF(cookieName, headerName string, deny DenyFunc) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultCSRFCookie
	}
	if headerName == "" {
		headerName = DefaultCSRFHeader
	}
	deny = orPlain(deny)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := BearerToken(r); ok {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(cookieName)
			header := r.Header.Get(headerName)
			if err != nil || cookie.Value == "" || header == "" ||
				subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
				deny(w, r, http.StatusForbidden, ErrCSRF)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
