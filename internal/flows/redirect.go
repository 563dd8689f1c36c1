package flows

import (
	"net/url"
	"strings"
)

// Redirects resolves the post-login "next" URL against a host allow-list.
// A pattern is either an exact host or "*.domain", which matches any
// subdomain of domain but not domain itself.
type Redirects struct {
	Default        string
	Hosts          []string
	AllowLocalhost bool
}

// Resolve returns next when its host is allowed, otherwise Default.
func (r Redirects) Resolve(next string) string {
	if r.Allowed(next) {
		return next
	}
	return r.Default
}

func (r Redirects) Allowed(next string) bool {
	next = strings.TrimSpace(next)
	if next == "" {
		return false
	}
	u, err := url.Parse(next)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if r.AllowLocalhost && host == "localhost" {
		return true
	}
	for _, pattern := range r.Hosts {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}
