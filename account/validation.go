package account

import (
	"net/mail"
	"sort"
	"strings"
)

// ValidationError carries field-specific messages that are safe to show the
// user because they never depend on whether an account exists.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an error with a single message on field.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], message)
}

// Empty reports whether no message has been recorded.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

func (v *ValidationError) Error() string {
	if v.Empty() {
		return "validation failed"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.Join(v.Fields[k], " "))
	}
	return b.String()
}

// ValidateEmail checks the address syntax.
func ValidateEmail(email string) *ValidationError {
	email = strings.TrimSpace(email)
	if email == "" {
		return NewValidationError("email", "This field is required.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return NewValidationError("email", "Enter a valid email address.")
	}
	return nil
}
