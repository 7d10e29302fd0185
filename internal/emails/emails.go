// Package emails normalizes the comma-joined client email lists stored on orders.
package emails

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

const separator = ","

var validate = validator.New()

// Valid reports whether value is a syntactically valid email address.
func Valid(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	return validate.Var(trimmed, "required,email") == nil
}

// Set is the normalized, deduplicated list of lowercase addresses in submission order.
type Set []string

// Parse lowercases raw, splits it on commas, trims each token and keeps the valid
// addresses in first-seen order. Invalid tokens are dropped silently.
func Parse(raw string) Set {
	parts := strings.Split(strings.ToLower(raw), separator)
	seen := make(map[string]struct{}, len(parts))
	set := make(Set, 0, len(parts))
	for _, part := range parts {
		candidate := strings.TrimSpace(part)
		if candidate == "" || !Valid(candidate) {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		set = append(set, candidate)
	}
	return set
}

// Normalize returns the stored form of raw.
func Normalize(raw string) string {
	return Parse(raw).String()
}

// String joins the set with commas.
func (s Set) String() string {
	return strings.Join(s, separator)
}

// Contains reports whether email appears as an exact token, compared case-insensitively.
func (s Set) Contains(email string) bool {
	needle := strings.ToLower(strings.TrimSpace(email))
	if needle == "" {
		return false
	}
	for _, candidate := range s {
		if candidate == needle {
			return true
		}
	}
	return false
}

// Owns reports whether the stored list contains email as an exact token.
func Owns(stored, email string) bool {
	needle := strings.ToLower(strings.TrimSpace(email))
	if needle == "" {
		return false
	}
	for _, token := range strings.Split(strings.ToLower(stored), separator) {
		if strings.TrimSpace(token) == needle {
			return true
		}
	}
	return false
}
