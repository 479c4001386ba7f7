package ledger

import (
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches canonical instrument symbols: 1-10 characters,
// leading letter, then letters, digits, or dots (e.g. AAPL, BRK.B).
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// NormalizeSymbol canonicalizes a symbol to upper case and validates the
// format. Lookups are case-insensitive everywhere, so this is the only
// place symbols are ever transformed.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: malformed symbol %q", ErrInvalidArgument, symbol)
	}
	return s, nil
}
