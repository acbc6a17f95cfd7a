// Package security validates operator input and keeps credentials out of
// output and logs.
package security

import (
	"regexp"
	"strings"

	"alphahunter/internal/errors"
)

var symbolPattern = regexp.MustCompile(`^[0-9]{6}$`)

// NormalizeSymbol trims an A-share code and strips an exchange prefix or
// suffix such as "sh600519" or "600519.SH". The result must be six digits.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, p := range []string{"SH", "SZ", "BJ"} {
		s = strings.TrimPrefix(s, p)
		s = strings.TrimSuffix(s, "."+p)
	}
	if !symbolPattern.MatchString(s) {
		return "", errors.NewValidationError("symbol", symbol, "want a six-digit A-share code")
	}
	return s, nil
}

// SanitizeText removes control characters from free-form text and caps its
// length in runes.
func SanitizeText(text string, maxLen int) string {
	var b strings.Builder
	n := 0
	for _, r := range text {
		if r < 32 || r == 127 {
			continue
		}
		if maxLen > 0 && n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
