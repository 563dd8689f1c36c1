package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherCheck(t *testing.T) {
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	encoded, err := h.Hash("Str0ng!Pass99")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Check("Str0ng!Pass99", encoded) {
		t.Fatal("expected matching password to check")
	}
	if h.Check("Str0ng!Pass98", encoded) {
		t.Fatal("expected other password to fail")
	}
	if h.Check("anything", "garbage") {
		t.Fatal("expected malformed hash to fail")
	}
}

func TestUnusableNeverMatches(t *testing.T) {
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	u, err := Unusable()
	if err != nil {
		t.Fatalf("Unusable: %v", err)
	}
	if IsUsable(u) {
		t.Fatal("expected sentinel to be unusable")
	}
	if h.Check(u, u) || h.Check("", u) {
		t.Fatal("expected unusable hash to never match")
	}
	if IsUsable("") {
		t.Fatal("expected empty hash to be unusable")
	}
	if h.NeedsRehash(u) {
		t.Fatal("unusable hash must not need rehash")
	}
}

func TestBcryptLegacyVerifies(t *testing.T) {
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass-1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if !h.Check("legacy-pass-1", string(legacy)) {
		t.Fatal("expected bcrypt hash to verify")
	}
	if h.Check("legacy-pass-2", string(legacy)) {
		t.Fatal("expected wrong password to fail against bcrypt")
	}
	if !h.NeedsRehash(string(legacy)) {
		t.Fatal("expected bcrypt hash to need rehash")
	}
}
