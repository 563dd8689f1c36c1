package social

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/portunus-id/portunus/account"
)

func signGoogleToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func newGoogleTest(t *testing.T) (*Google, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewGoogleWithKeySet("client-1", keys), key
}

func googleClaims(iss, email string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   iss,
		"aud":   "client-1",
		"sub":   "g-123",
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func TestGoogleAcceptsBothIssuers(t *testing.T) {
	g, key := newGoogleTest(t)
	for _, iss := range googleIssuers {
		raw := signGoogleToken(t, key, googleClaims(iss, "a@example.com"))
		require.NoError(t, g.Verify(context.Background(), "a@example.com", raw), iss)
	}
}

func TestGoogleRejections(t *testing.T) {
	g, key := newGoogleTest(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	wrongAud := googleClaims("accounts.google.com", "a@example.com")
	wrongAud["aud"] = "someone-else"

	cases := map[string]string{
		"email mismatch": signGoogleToken(t, key, googleClaims("accounts.google.com", "b@example.com")),
		"bad issuer":     signGoogleToken(t, key, googleClaims("https://evil.example", "a@example.com")),
		"wrong audience": signGoogleToken(t, key, wrongAud),
		"foreign key":    signGoogleToken(t, other, googleClaims("accounts.google.com", "a@example.com")),
		"garbage":        "not-a-token",
	}
	for name, raw := range cases {
		err := g.Verify(context.Background(), "a@example.com", raw)
		require.ErrorIs(t, err, ErrRejected, name)
	}
}

func newFacebookServer(t *testing.T, debugStatus int, email string) *httptest.Server {
	t.Helper()
	return newFacebookServerWithDebug(t, debugStatus, `{"data":{"is_valid":true,"app_id":"app-1"}}`, email)
}

func newFacebookServerWithDebug(t *testing.T, debugStatus int, debugBody, email string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("client_id") != "app-1" || r.Form.Get("client_secret") != "secret" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "app-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/debug_token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "app-token" {
			http.Error(w, "no app token", http.StatusBadRequest)
			return
		}
		if debugStatus != http.StatusOK {
			w.WriteHeader(debugStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid"}}`))
			return
		}
		_, _ = w.Write([]byte(debugBody))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"email": email})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFacebookVerify(t *testing.T) {
	srv := newFacebookServer(t, http.StatusOK, "a@example.com")
	fb := NewFacebook(FacebookConfig{AppID: "app-1", AppSecret: "secret", GraphURL: srv.URL, Client: srv.Client()})

	require.NoError(t, fb.Verify(context.Background(), "a@example.com", "user-token"))
	require.ErrorIs(t, fb.Verify(context.Background(), "b@example.com", "user-token"), ErrRejected)
}

func TestFacebookEmailMatchIgnoresCase(t *testing.T) {
	srv := newFacebookServer(t, http.StatusOK, "Alice@Example.com")
	fb := NewFacebook(FacebookConfig{AppID: "app-1", AppSecret: "secret", GraphURL: srv.URL, Client: srv.Client()})

	require.NoError(t, fb.Verify(context.Background(), " alice@example.COM", "user-token"))
}

func TestFacebookRejectsInvalidOrForeignToken(t *testing.T) {
	for name, body := range map[string]string{
		"invalid":     `{"data":{"is_valid":false,"app_id":"app-1"}}`,
		"other app":   `{"data":{"is_valid":true,"app_id":"app-2"}}`,
		"missing app": `{"data":{"is_valid":true}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newFacebookServerWithDebug(t, http.StatusOK, body, "a@example.com")
			fb := NewFacebook(FacebookConfig{AppID: "app-1", AppSecret: "secret", GraphURL: srv.URL, Client: srv.Client()})

			require.ErrorIs(t, fb.Verify(context.Background(), "a@example.com", "user-token"), ErrRejected)
		})
	}
}

func TestFacebookDebugTokenFailure(t *testing.T) {
	srv := newFacebookServer(t, http.StatusBadRequest, "a@example.com")
	fb := NewFacebook(FacebookConfig{AppID: "app-1", AppSecret: "secret", GraphURL: srv.URL, Client: srv.Client()})

	require.ErrorIs(t, fb.Verify(context.Background(), "a@example.com", "user-token"), ErrRejected)
}

func TestFacebookBadAppCredentials(t *testing.T) {
	srv := newFacebookServer(t, http.StatusOK, "a@example.com")
	fb := NewFacebook(FacebookConfig{AppID: "app-1", AppSecret: "wrong", GraphURL: srv.URL, Client: srv.Client()})

	require.ErrorIs(t, fb.Verify(context.Background(), "a@example.com", "user-token"), ErrUnavailable)
}

func TestRegistryTimeoutFailsClosed(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Register(account.ProviderGoogle, VerifierFunc(func(ctx context.Context, _, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	err := r.Verify(context.Background(), account.ProviderGoogle, "a@example.com", "tok")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRegistryUnknownProviderAndEmptyInput(t *testing.T) {
	r := NewRegistry(0)
	r.Register(account.ProviderGoogle, VerifierFunc(func(context.Context, string, string) error { return nil }))

	require.ErrorIs(t, r.Verify(context.Background(), account.ProviderFacebook, "a@example.com", "tok"), ErrUnsupportedProvider)
	require.ErrorIs(t, r.Verify(context.Background(), account.ProviderGoogle, "", "tok"), ErrRejected)
	require.NoError(t, r.Verify(context.Background(), account.ProviderGoogle, "a@example.com", "tok"))
	require.True(t, r.Supports(account.ProviderGoogle))
	require.False(t, r.Supports(account.ProviderFacebook))

	var nilRegistry *Registry
	require.False(t, nilRegistry.Supports(account.ProviderGoogle))
	require.True(t, errors.Is(nilRegistry.Verify(context.Background(), account.ProviderGoogle, "a", "b"), ErrUnsupportedProvider))
}
