package flows

import (
	"net/url"
	"strings"
)

// link joins the frontend base URL with escaped path segments.
func (s *Service) link(trailingSlash bool, segments ...string) string {
	base := strings.TrimRight(s.deps.Policy.FrontendURL, "/")
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	out := base + "/" + strings.Join(escaped, "/")
	if trailingSlash {
		out += "/"
	}
	return out
}

func (s *Service) resetLink(userID, token string) string {
	return s.link(true, "reset_password", "complete", userID, token)
}

func (s *Service) setPasswordLink(userID, token string) string {
	return s.link(false, "set-password", userID, token)
}

func (s *Service) changeEmailLink(userID, token string) string {
	return s.link(true, "change_email", "confirm", userID, token)
}

func (s *Service) resetRequestLink() string {
	return s.link(false, "reset_password")
}
