package apperror

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// Keys whose values are never logged or returned, whatever they contain.
var sensitiveKeys = map[string]struct{}{
	"card_number":    {},
	"cardnumber":     {},
	"pan":            {},
	"cvv":            {},
	"cvc":            {},
	"secret":         {},
	"client_secret":  {},
	"token":          {},
	"access_token":   {},
	"refresh_token":  {},
	"api_key":        {},
	"apikey":         {},
	"password":       {},
	"authorization":  {},
	"account_number": {},
}

var panPattern = regexp.MustCompile(`\d{12,19}`)

// Sanitize returns a deep copy of the detail map with sensitive keys redacted
// and card-like digit runs masked in every string value. The input map is not
// modified.
func Sanitize(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch value := v.(type) {
	case string:
		return MaskPAN(value)
	case map[string]any:
		return Sanitize(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	_, found := sensitiveKeys[normalized]
	return found
}

// MaskPAN masks the interior digits of any card-like number in s, keeping the
// first six and last four for support correlation.
func MaskPAN(s string) string {
	return panPattern.ReplaceAllStringFunc(s, func(match string) string {
		masked := []byte(match)
		for i := 6; i < len(match)-4; i++ {
			masked[i] = '*'
		}
		return string(masked)
	})
}
