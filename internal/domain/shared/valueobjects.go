package shared

import (
	"net/mail"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Email
// ═══════════════════════════════════════════════════════════════════════════

// Email is a normalized (trimmed, lower-cased) e-mail address.
type Email string

// maxEmailLength follows RFC 5321.
const maxEmailLength = 254

// NewEmail parses and normalizes an address. Display-name forms like
// "Ada <ada@example.com>" are rejected.
func NewEmail(raw string) (Email, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || len(s) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@"):], ".") {
		return "", ErrInvalidEmail
	}
	return Email(s), nil
}

// String returns the string representation.
func (e Email) String() string {
	return string(e)
}

// Domain returns the part after '@'.
func (e Email) Domain() string {
	s := string(e)
	if i := strings.LastIndex(s, "@"); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Slug
// ═══════════════════════════════════════════════════════════════════════════

// slugRegex matches catalog identifiers such as "html-css" or "v0".
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// IsSlug reports whether s is a valid catalog identifier.
func IsSlug(s string) bool {
	return len(s) <= 64 && slugRegex.MatchString(s)
}
