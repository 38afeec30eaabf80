// Package tracking generates the public tracking identifiers handed to
// customers when an application is submitted. The identifier is the only
// credential needed to check application status, so it must be unguessable
// enough in its random portion while staying easy to read out over the phone.
package tracking

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Prefix is the constant lead-in of every tracking identifier.
const Prefix = "TR"

// NewID returns a tracking identifier of the form TR + YYYYMMDD + 8 uppercase
// hex characters, e.g. TR20260830A41F09BC. Uniqueness is enforced by the
// database; callers retry on a unique violation.
func NewID(now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate tracking id: %w", err)
	}
	return Prefix + now.Format("20060102") + strings.ToUpper(hex.EncodeToString(b)), nil
}

// IsValid reports whether s is structurally a tracking identifier. It does not
// check existence, only shape, so handlers can reject junk before touching the
// database.
func IsValid(s string) bool {
	if len(s) != len(Prefix)+8+8 {
		return false
	}
	if !strings.HasPrefix(s, Prefix) {
		return false
	}
	date := s[len(Prefix) : len(Prefix)+8]
	if _, err := time.Parse("20060102", date); err != nil {
		return false
	}
	suffix := s[len(Prefix)+8:]
	for _, r := range suffix {
		isDigit := r >= '0' && r <= '9'
		isUpperHex := r >= 'A' && r <= 'F'
		if !isDigit && !isUpperHex {
			return false
		}
	}
	return true
}
