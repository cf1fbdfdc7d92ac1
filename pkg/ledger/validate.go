package ledger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field length limits shared by the contracts.
const (
	MaxIDLength    = 64
	MaxTextLength  = 100
	MaxNotesLength = 500
)

// RequireLength fails with a validation error carrying code when value is outside [min, max] runes.
func RequireLength(code uint32, field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		if min == 0 {
			return Invalid(code, "%s must be at most %d characters", field, max)
		}
		return Invalid(code, "%s must be %d-%d characters", field, min, max)
	}
	return nil
}

// RequireID validates an identifier such as a farm, shipment or test id.
// Identifiers become storage key parts, so control characters are rejected.
func RequireID(code uint32, field, value string) error {
	if err := RequireLength(code, field, value, 1, MaxIDLength); err != nil {
		return err
	}
	return RequirePrintable(code, field, value)
}

// RequireText validates a short descriptive field such as a name or location.
func RequireText(code uint32, field, value string) error {
	if err := RequireLength(code, field, value, 1, MaxTextLength); err != nil {
		return err
	}
	return RequirePrintable(code, field, value)
}

// RequirePrintable fails when value contains a control character.
func RequirePrintable(code uint32, field, value string) error {
	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return Invalid(code, "%s must not contain control characters", field)
	}
	return nil
}
