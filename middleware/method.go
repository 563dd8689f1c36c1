package middleware

import (
	"errors"
	"net/http"
	"strings"
)

var errMethodNotAllowed = errors.New("method not allowed")

// RequireMethod answers 405 with an Allow header for any other method.
// HEAD is accepted wherever GET is.
func RequireMethod(methods ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(methods)+1)
	for _, m := range methods {
		allowed[strings.ToUpper(m)] = struct{}{}
	}
	if _, ok := allowed[http.MethodGet]; ok {
		allowed[http.MethodHead] = struct{}{}
	}
	allow := strings.Join(methods, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[r.Method]; !ok {
				w.Header().Set("Allow", allow)
				PlainDeny(w, r, http.StatusMethodNotAllowed, errMethodNotAllowed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
