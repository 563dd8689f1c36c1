package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// UnusablePrefix marks a stored hash that no password can match. Accounts
// created by an administrator or through social login carry one until a
// reset flow sets a real password.
const UnusablePrefix = "!"

// Hasher is the password capability used by the auth flows. New hashes are
// argon2id; bcrypt hashes from imported accounts still verify and report
// NeedsRehash.
type Hasher struct {
	argon *Argon2
	dummy string
}

// NewHasher builds a Hasher and precomputes the dummy hash used to keep
// failed lookups as slow as failed comparisons.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	dummy, err := a.Hash("portunus-dummy-password")
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a, dummy: dummy}, nil
}

// Hash returns a fresh argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Check reports whether password matches encoded. Unusable and malformed
// hashes never match.
func (h *Hasher) Check(password, encoded string) bool {
	switch {
	case !IsUsable(encoded):
		h.DummyCheck(password)
		return false
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	default:
		ok, err := h.argon.Verify(password, encoded)
		return err == nil && ok
	}
}

// DummyCheck burns the same work as a real comparison and discards it.
func (h *Hasher) DummyCheck(password string) {
	_, _ = h.argon.Verify(password, h.dummy)
}

// NeedsRehash reports whether encoded should be replaced on next login.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if !IsUsable(encoded) {
		return false
	}
	if isBcrypt(encoded) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encoded)
	return err == nil && upgrade
}

// Unusable returns a random sentinel hash.
func Unusable() (string, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.New("generate unusable password: " + err.Error())
	}
	return UnusablePrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsUsable reports whether encoded can ever match a password.
func IsUsable(encoded string) bool {
	return encoded != "" && !strings.HasPrefix(encoded, UnusablePrefix)
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
