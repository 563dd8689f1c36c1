package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newRSAPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func sampleClaims(kind Kind, now time.Time) Claims {
	return Claims{
		Kind: kind,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-1",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
}

func TestSignParseRoundTripRS512(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodRS512, PrivateKey: newRSAPEM(t), Issuer: "portunus"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	c := sampleClaims(KindRefresh, time.Now())
	raw, err := m.Sign(c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := m.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Kind != KindRefresh || got.UserID() != "user-1" || got.ID != "jti-1" {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if got.Issuer != "portunus" {
		t.Fatalf("expected issuer to be stamped, got %q", got.Issuer)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, sampleClaims(KindAccess, time.Now()))
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "portunus",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	sign := func(iss, aud string, exp time.Time) string {
		c := sampleClaims(KindAccess, time.Now().Add(-time.Minute))
		c.Issuer = iss
		c.Audience = gjwt.ClaimStrings{aud}
		c.ExpiresAt = gjwt.NewNumericDate(exp)
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.Parse(sign("other", "api", time.Now().Add(time.Minute))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(sign("portunus", "other-api", time.Now().Add(time.Minute))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(sign("portunus", "api", time.Now().Add(-15*time.Second))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Parse(sign("portunus", "api", time.Now().Add(-2*time.Minute))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseIgnoringExpiryAcceptsExpiredToken(t *testing.T) {
	pub, priv := newEdKeys(t)
	now := time.Now()
	clock := now
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Now:           func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	raw, err := m.Sign(sampleClaims(KindReset, now))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	clock = now.Add(time.Hour)

	if _, err := m.Parse(raw); err == nil {
		t.Fatal("expected expired token to fail Parse")
	}
	c, err := m.ParseIgnoringExpiry(raw)
	if err != nil {
		t.Fatalf("expected signature-only parse to pass: %v", err)
	}
	if c.ID != "jti-1" {
		t.Fatalf("unexpected jti %q", c.ID)
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, sampleClaims(KindAccess, time.Now()))
	tok.Header["kid"] = "k2"
	token, _ := tok.SignedString(priv1)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, err := m.Sign(sampleClaims(KindAccess, time.Now()))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k1": pub2}})
	if _, err := m2.Parse(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestSignRequiresKind(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	c := sampleClaims("", time.Now())
	if _, err := m.Sign(c); err == nil {
		t.Fatal("expected missing kind to fail")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{SigningMethod: "none"},
		{SigningMethod: MethodHS256},
		{SigningMethod: MethodRS512, PrivateKey: []byte("not pem")},
		{SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func FuzzParse(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Issuer: "fuzz"})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := mgr.Sign(sampleClaims(KindAccess, time.Now()))
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(input)
		if err == nil && claims == nil {
			t.Fatal("Parse returned nil claims without error")
		}
	})
}
