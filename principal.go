package escrow

// Principal identifier limits.
const (
	MinPrincipalLen = 2
	MaxPrincipalLen = 64
)

// PrincipalValidator reports whether an identifier may own a ledger entry.
type PrincipalValidator func(principal string) bool

// ValidPrincipal is the default PrincipalValidator.
//
// A principal is 2 to 64 characters of lowercase letters and digits, split
// into parts by '-', '_' or '.'. A separator may not start or end the
// identifier, and two separators may not be adjacent.
func ValidPrincipal(principal string) bool {
	if len(principal) < MinPrincipalLen || len(principal) > MaxPrincipalLen {
		return false
	}

	lastSeparator := true
	for i := 0; i < len(principal); i++ {
		switch c := principal[i]; {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			lastSeparator = false
		case c == '-' || c == '_' || c == '.':
			if lastSeparator {
				return false
			}
			lastSeparator = true
		default:
			return false
		}
	}
	return !lastSeparator
}
