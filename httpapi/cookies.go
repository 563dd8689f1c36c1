package httpapi

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig names and scopes the session and CSRF cookies.
type CookieConfig struct {
	SessionName string
	CSRFName    string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
	MaxAge      time.Duration
}

// DefaultCookies returns the production cookie settings.
func DefaultCookies() CookieConfig {
	return CookieConfig{
		SessionName: "portunus_session",
		CSRFName:    "csrftoken",
		Secure:      true,
		SameSite:    http.SameSiteLaxMode,
		MaxAge:      time.Hour,
	}
}

// ParseSameSite maps "strict", "lax" or "none" to the cookie attribute.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c CookieConfig) setSession(w http.ResponseWriter, sessionID, csrf string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.SessionName,
		Value:    sessionID,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(c.MaxAge.Seconds()),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	})
	// Readable by the frontend so it can echo it in the CSRF header.
	http.SetCookie(w, &http.Cookie{
		Name:     c.CSRFName,
		Value:    csrf,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(c.MaxAge.Seconds()),
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	for _, name := range []string{c.SessionName, c.CSRFName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   c.Domain,
			MaxAge:   -1,
			Secure:   c.Secure,
			HttpOnly: name == c.SessionName,
			SameSite: c.SameSite,
		})
	}
}

func (c CookieConfig) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(c.SessionName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
