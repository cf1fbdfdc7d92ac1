package ledger

import (
	"regexp"
	"strings"
)

// Principal identifies a transaction sender, a standard Stacks address optionally
// followed by a contract name.
type Principal string

var principalPattern = regexp.MustCompile(`^S[PMTN][0-9A-HJKMNP-TV-Z]{37,39}(\.[a-zA-Z][a-zA-Z0-9\-]{0,39})?$`)

// ParsePrincipal trims and validates raw input coming from headers, flags or JSON.
func ParsePrincipal(raw string) (Principal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrMissingSender
	}
	if !principalPattern.MatchString(trimmed) {
		return "", Invalid(ErrInvalidPrincipal.Code, "invalid principal %q", trimmed)
	}
	return Principal(trimmed), nil
}

// Valid reports whether p is a well formed principal.
func (p Principal) Valid() bool {
	return principalPattern.MatchString(string(p))
}

func (p Principal) String() string { return string(p) }
