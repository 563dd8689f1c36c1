package password

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/trustelem/zxcvbn"
)

//go:embed common-passwords.txt
var commonPasswordsRaw []byte

var commonPasswords = loadCommon(commonPasswordsRaw)

func loadCommon(raw []byte) map[string]struct{} {
	out := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line != "" {
			out[line] = struct{}{}
		}
	}
	return out
}

// Attributes are the user fields a password must not resemble.
type Attributes struct {
	Email string
}

// Rule inspects a password and returns a user-facing message, or "" when
// the password passes.
type Rule func(password string, attrs Attributes) string

// Policy runs every rule and collects all messages.
type Policy struct {
	rules []Rule
}

// NewPolicy returns a policy running rules in order.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// DefaultPolicy mirrors the production validator set.
func DefaultPolicy() *Policy {
	return NewPolicy(
		SimilarToAttributes(0.7),
		MinLength(8),
		NotCommon(),
		NotNumeric(),
		AlphaNumeric(),
		MinStrength(MinScore),
	)
}

// Validate returns every failing rule's message. An empty result means the
// password is acceptable.
func (p *Policy) Validate(password string, attrs Attributes) []string {
	var msgs []string
	for _, rule := range p.rules {
		if msg := rule(password, attrs); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// MinLength rejects passwords shorter than n runes.
func MinLength(n int) Rule {
	return func(password string, _ Attributes) string {
		if len([]rune(password)) < n {
			return fmt.Sprintf("This password is too short. It must contain at least %d characters.", n)
		}
		return ""
	}
}

// NotCommon rejects passwords on the embedded common-password list,
// ignoring case and surrounding space.
func NotCommon() Rule {
	return func(password string, _ Attributes) string {
		if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
			return "This password is too common."
		}
		return ""
	}
}

// NotNumeric rejects passwords made only of digits.
func NotNumeric() Rule {
	return func(password string, _ Attributes) string {
		if password == "" {
			return ""
		}
		for _, r := range password {
			if !unicode.IsDigit(r) {
				return ""
			}
		}
		return "This password is entirely numeric."
	}
}

// AlphaNumeric requires one ASCII letter and one digit. Only the first
// missing class is reported.
func AlphaNumeric() Rule {
	return func(password string, _ Attributes) string {
		var alpha, digit bool
		for _, r := range password {
			switch {
			case r < unicode.MaxASCII && unicode.IsLetter(r):
				alpha = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		if !alpha {
			return "This password must contain at least one alphabetic character!"
		}
		if !digit {
			return "This password must contain at least one numeric character!"
		}
		return ""
	}
}

// MinScore is the lowest zxcvbn score (0-4) MinStrength accepts by default.
const MinScore = 3

// MinStrength rejects passwords whose zxcvbn score is below min. The email
// and its local part are fed to the estimator as user inputs, so passwords
// built from them are guessed early.
func MinStrength(min int) Rule {
	return func(password string, attrs Attributes) string {
		if password == "" {
			return ""
		}
		if zxcvbn.PasswordStrength(password, attrs.inputs()).Score < min {
			return "Your password needs to be strong. Try making it longer or adding in numeric and special characters to make it stronger."
		}
		return ""
	}
}

// SimilarToAttributes rejects a password whose edit-distance similarity to
// the email, or to its local part, reaches maxSimilarity.
func SimilarToAttributes(maxSimilarity float64) Rule {
	return func(password string, attrs Attributes) string {
		if password == "" {
			return ""
		}
		pw := strings.ToLower(password)
		for _, c := range attrs.inputs() {
			if similarity(pw, c) >= maxSimilarity {
				return "The password is too similar to the email address."
			}
		}
		return ""
	}
}

func (a Attributes) inputs() []string {
	email := strings.ToLower(strings.TrimSpace(a.Email))
	if email == "" {
		return nil
	}
	out := []string{email}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		out = append(out, local)
	}
	return out
}

// similarity is 1 - distance/longest, in [0, 1].
func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
