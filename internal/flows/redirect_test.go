package flows

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedirectsAllowed(t *testing.T) {
	r := Redirects{
		Default:        "https://example.com/",
		Hosts:          []string{"example.com", "*.example.org"},
		AllowLocalhost: true,
	}

	tests := []struct {
		next string
		want bool
	}{
		{"https://example.com/dashboard", true},
		{"https://EXAMPLE.com/x", true},
		{"https://sub.example.com/", false},
		{"https://a.example.org/cb", true},
		{"https://a.b.example.org/cb", true},
		{"https://example.org/", false},
		{"https://evil-example.org/", false},
		{"http://localhost:3000/", true},
		{"javascript:alert(1)", false},
		{"//example.com/", false},
		{"/relative", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			require.Equal(t, tt.want, r.Allowed(tt.next))
		})
	}
}

func TestRedirectsResolveFallsBack(t *testing.T) {
	r := Redirects{Default: "https://example.com/", Hosts: []string{"example.com"}}
	require.Equal(t, "https://example.com/a", r.Resolve("https://example.com/a"))
	require.Equal(t, "https://example.com/", r.Resolve("https://phish.test/"))

	strict := Redirects{Default: "https://example.com/"}
	require.Equal(t, "https://example.com/", strict.Resolve("http://localhost/"))
}
