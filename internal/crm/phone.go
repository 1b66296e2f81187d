package crm

import "strings"

// NormalizePhone maps a raw phone string to the canonical 11-digit form
// starting with 7, or "" when the input cannot be normalized. The result
// is a fixed point: normalizing an already-normalized number returns it
// unchanged.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "7" + digits[1:]
	case len(digits) == 11 && digits[0] == '7':
		return digits
	case len(digits) == 10 && digits[0] == '9':
		// Bare mobile number without the country prefix.
		return "7" + digits
	default:
		return ""
	}
}
