package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/portunus-id/portunus"
	"github.com/portunus-id/portunus/mailer"
	"github.com/portunus-id/portunus/middleware"
	"github.com/portunus-id/portunus/store/memstore"
)

const password = "Str0ng!Pass99"

type apiTest struct {
	api    *API
	engine *portunus.Engine
	mail   *mailer.LogTransport
	mr     *miniredis.Miniredis
}

// client carries the cookies and access token of one browser.
type client struct {
	session string
	csrf    string
	token   string
}

type response struct {
	status  int
	body    map[string]any
	cookies []*http.Cookie
}

func (r response) errorCode() string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func newAPITest(t *testing.T) *apiTest {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := portunus.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("httpapi-test-secret-httpapi-test-secret")
	cfg.Password = portunus.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}

	transport := mailer.NewLogTransport(zap.NewNop())
	m, err := mailer.New(mailer.Config{From: "no-reply@example.com"}, transport)
	require.NoError(t, err)

	engine, err := portunus.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memstore.New()).
		WithMailer(m).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	cookies := DefaultCookies()
	cookies.Secure = false
	api, err := New(Config{
		Engine:   engine,
		Cookies:  cookies,
		Throttle: middleware.ThrottleConfig{RequestsPerSecond: 1000, Burst: 1000},
	})
	require.NoError(t, err)

	return &apiTest{api: api, engine: engine, mail: transport, mr: mr}
}

func (at *apiTest) do(t *testing.T, c *client, method, path string, body any) response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c != nil {
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if c.session != "" {
			req.AddCookie(&http.Cookie{Name: "portunus_session", Value: c.session})
		}
		if c.csrf != "" {
			req.AddCookie(&http.Cookie{Name: "csrftoken", Value: c.csrf})
			req.Header.Set(middleware.DefaultCSRFHeader, c.csrf)
		}
	}

	rec := httptest.NewRecorder()
	at.api.ServeHTTP(rec, req)

	res := response{status: rec.Code, cookies: rec.Result().Cookies()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res.body))
	}
	if c != nil {
		for _, ck := range res.cookies {
			switch ck.Name {
			case "portunus_session":
				c.session = ck.Value
			case "csrftoken":
				c.csrf = ck.Value
			}
		}
		if tok, ok := res.body["access_token"].(string); ok {
			c.token = tok
		}
	}
	return res
}

func (at *apiTest) register(t *testing.T, email string) *client {
	t.Helper()
	c := &client{}
	res := at.do(t, c, http.MethodPost, "/auth/register", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, true, res.body["success"], res.body)
	require.NotEmpty(t, c.token)
	require.NotEmpty(t, c.session)
	return c
}

var linkPattern = regexp.MustCompile(`https?://\S+`)

func (at *apiTest) lastLink(t *testing.T, subject string) []string {
	t.Helper()
	sent := at.mail.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Subject == subject {
			link := linkPattern.FindString(sent[i].Text)
			require.NotEmpty(t, link)
			return strings.Split(strings.Trim(link, "/"), "/")
		}
	}
	t.Fatalf("no %q mail", subject)
	return nil
}

func TestRegisterLoginAndMe(t *testing.T) {
	at := newAPITest(t)
	at.register(t, "ada@example.com")

	c := &client{}
	res := at.do(t, c, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": password})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, true, res.body["success"])
	require.NotEmpty(t, res.body["expires_at"])

	var session *http.Cookie
	for _, ck := range res.cookies {
		if ck.Name == "portunus_session" {
			session = ck
		}
	}
	require.NotNil(t, session)
	require.True(t, session.HttpOnly)

	res = at.do(t, c, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, res.status)
	user := res.body["user"].(map[string]any)
	require.Equal(t, "ada@example.com", user["email"])
	require.NotContains(t, user, "password")
}

func TestLoginFailureIsUniform(t *testing.T) {
	at := newAPITest(t)
	at.register(t, "ada@example.com")

	wrong := at.do(t, &client{}, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"})
	missing := at.do(t, &client{}, http.MethodPost, "/auth/login", map[string]string{"email": "who@example.com", "password": "nope"})

	for _, res := range []response{wrong, missing} {
		require.Equal(t, http.StatusOK, res.status)
		require.Equal(t, false, res.body["success"])
		require.Equal(t, "auth_failure", res.errorCode())
	}
	require.Equal(t, wrong.body, missing.body)
}

func TestValidationErrorsCarryFields(t *testing.T) {
	at := newAPITest(t)

	res := at.do(t, &client{}, http.MethodPost, "/auth/register", map[string]string{"email": "not-an-email", "password": password})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, "validation_error", res.errorCode())
	fields := res.body["error"].(map[string]any)["fields"].(map[string]any)
	require.Contains(t, fields, "email")
}

func TestGuardsAndRouting(t *testing.T) {
	at := newAPITest(t)

	res := at.do(t, &client{}, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, res.status)
	require.Equal(t, "not_authenticated", res.errorCode())

	res = at.do(t, &client{token: "garbage"}, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, res.status)

	res = at.do(t, nil, http.MethodGet, "/auth/login", nil)
	require.Equal(t, http.StatusMethodNotAllowed, res.status)
	require.Equal(t, "method_not_allowed", res.errorCode())

	res = at.do(t, nil, http.MethodGet, "/nowhere", nil)
	require.Equal(t, http.StatusNotFound, res.status)
	require.Equal(t, "not_found", res.errorCode())

	res = at.do(t, nil, http.MethodPost, "/auth/login", map[string]string{"unknown": "field"})
	require.Equal(t, http.StatusBadRequest, res.status)
	require.Equal(t, "bad_request", res.errorCode())
}

func TestRefreshNeedsCSRFAndEndsWithLogout(t *testing.T) {
	at := newAPITest(t)
	c := at.register(t, "ada@example.com")
	first := c.token

	// Cookie-only request without the header.
	noHeader := &client{session: c.session}
	res := at.do(t, noHeader, http.MethodPost, "/auth/token/refresh", nil)
	require.Equal(t, http.StatusForbidden, res.status)
	require.Equal(t, "csrf_failed", res.errorCode())

	// A self-consistent cookie/header pair that does not match the session.
	forged := &client{session: c.session, csrf: "planted"}
	res = at.do(t, forged, http.MethodPost, "/auth/token/refresh", nil)
	require.Equal(t, http.StatusForbidden, res.status)

	cookieOnly := &client{session: c.session, csrf: c.csrf}
	res = at.do(t, cookieOnly, http.MethodPost, "/auth/token/refresh", nil)
	require.Equal(t, http.StatusOK, res.status, res.body)
	require.Equal(t, true, res.body["rotated"])
	require.NotEqual(t, first, cookieOnly.token)

	saved := *cookieOnly
	res = at.do(t, cookieOnly, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, res.status, res.body)

	res = at.do(t, &saved, http.MethodPost, "/auth/token/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, res.status)

	res = at.do(t, &client{token: saved.token}, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, res.status)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	at := newAPITest(t)
	at.register(t, "ada@example.com")

	res := at.do(t, nil, http.MethodPost, "/auth/password/reset", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, true, res.body["success"])

	// Unknown addresses look the same.
	res = at.do(t, nil, http.MethodPost, "/auth/password/reset", map[string]string{"email": "who@example.com"})
	require.Equal(t, true, res.body["success"])

	parts := at.lastLink(t, "Password Reset Request")
	userID, token := parts[len(parts)-2], parts[len(parts)-1]

	c := &client{}
	body := map[string]string{"user_id": userID, "token": token, "new_password": "An0ther!Pass77"}
	res = at.do(t, c, http.MethodPost, "/auth/password/reset/complete", body)
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, true, res.body["success"], res.body)
	require.NotEmpty(t, c.token)

	res = at.do(t, &client{}, http.MethodPost, "/auth/password/reset/complete", body)
	require.Equal(t, "invalid_token", res.errorCode())

	res = at.do(t, &client{}, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "An0ther!Pass77"})
	require.Equal(t, true, res.body["success"])
}

func TestMfaLoginOverHTTP(t *testing.T) {
	at := newAPITest(t)
	c := at.register(t, "ada@example.com")

	res := at.do(t, c, http.MethodPost, "/mfa/email/activate", nil)
	require.Equal(t, true, res.body["success"], res.body)
	code := lastCode(t, at)
	res = at.do(t, c, http.MethodPost, "/mfa/email/activate/confirm", map[string]string{"code": code})
	require.Equal(t, true, res.body["success"], res.body)

	res = at.do(t, c, http.MethodGet, "/mfa/methods", nil)
	require.Len(t, res.body["methods"], 1)

	res = at.do(t, c, http.MethodPost, "/mfa/sms/activate", nil)
	require.Equal(t, "mfa_method_not_found", res.errorCode())

	login := &client{}
	res = at.do(t, login, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": password})
	require.Equal(t, true, res.body["mfa_required"])
	require.Empty(t, login.token)
	mfaToken := res.body["mfa_token"].(string)

	res = at.do(t, login, http.MethodPost, "/auth/login/mfa", map[string]string{"mfa_token": mfaToken, "code": "000000x"})
	require.Equal(t, false, res.body["success"])

	res = at.do(t, nil, http.MethodPost, "/mfa/email/code/token", map[string]string{"mfa_token": mfaToken})
	require.Equal(t, true, res.body["success"], res.body)

	res = at.do(t, login, http.MethodPost, "/auth/login/mfa", map[string]string{"mfa_token": mfaToken, "code": lastCode(t, at)})
	require.Equal(t, true, res.body["success"], res.body)
	require.NotEmpty(t, login.token)
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func lastCode(t *testing.T, at *apiTest) string {
	t.Helper()
	msg, ok := at.mail.Last()
	require.True(t, ok)
	require.Equal(t, "Your Security Code", msg.Subject)
	code := codePattern.FindString(msg.Text)
	require.NotEmpty(t, code)
	return code
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	at := newAPITest(t)
	c := at.register(t, "ada@example.com")
	at.register(t, "bob@example.com")

	res := at.do(t, c, http.MethodGet, "/admin/users", nil)
	require.Equal(t, http.StatusForbidden, res.status)
	require.Equal(t, "permission_denied", res.errorCode())

	_, err := at.engine.SetStaff(context.Background(), "ada@example.com", true)
	require.NoError(t, err)

	res = at.do(t, c, http.MethodGet, "/admin/users?q=bob&limit=10", nil)
	require.Equal(t, http.StatusOK, res.status, res.body)
	require.EqualValues(t, 1, res.body["total"])
	bob := res.body["users"].([]any)[0].(map[string]any)
	bobID := bob["id"].(string)

	res = at.do(t, c, http.MethodPost, "/admin/users", map[string]any{"email": "cy@example.com", "is_staff": true})
	require.Equal(t, true, res.body["success"], res.body)
	at.lastLink(t, "Account Created")

	res = at.do(t, c, http.MethodDelete, "/admin/users/"+bobID, nil)
	require.Equal(t, true, res.body["success"], res.body)

	res = at.do(t, c, http.MethodGet, "/admin/users/"+bobID, nil)
	require.Equal(t, http.StatusNotFound, res.status)
}

func TestHealthAndMetrics(t *testing.T) {
	at := newAPITest(t)

	res := at.do(t, nil, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.status)
	require.Equal(t, true, res.body["success"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	at.api.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "portunus_http_requests_total")
	require.Contains(t, rec.Body.String(), `route="/healthz"`)

	at.mr.Close()
	res = at.do(t, nil, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, res.status)
	require.Equal(t, "backend_unavailable", res.errorCode())
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	at := newAPITest(t)
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rec := httptest.NewRecorder()
	at.api.ServeHTTP(rec, req)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
