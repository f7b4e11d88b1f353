package metrics

import (
	"strings"
	"unicode"
)

// Error kinds recorded by the driver. gRPC status failures use the upper
// snake case code name (UNAVAILABLE, DEADLINE_EXCEEDED, ...).
const (
	KindUnavailable = "UNAVAILABLE"
	KindConnection  = "CONNECTION"
	KindUnknown     = "UNKNOWN"
)

var friendlyAliases = map[string]string{
	KindUnavailable:     "Delivery unavailable",
	KindConnection:      "Connection fault",
	"DEADLINE_EXCEEDED": "Deadline exceeded",
	"CANCELED":          "Stream cancelled",
}

// KindFromCode turns a gRPC code name such as "DeadlineExceeded" into the
// UPPER_SNAKE kind used as a metric label.
func KindFromCode(code string) string {
	cleaned := strings.TrimSpace(code)
	if cleaned == "" {
		return KindUnknown
	}
	var b strings.Builder
	runes := []rune(cleaned)
	for i, r := range runes {
		if r == ' ' || r == '-' || r == '.' || r == '/' {
			b.WriteRune('_')
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return KindUnknown
	}
	return out
}

// FriendlyKind returns a human label for an error kind.
func FriendlyKind(kind string) string {
	cleaned := strings.TrimSpace(kind)
	if cleaned == "" {
		return "Unknown error"
	}
	if alias, ok := friendlyAliases[strings.ToUpper(cleaned)]; ok {
		return alias
	}
	words := strings.Split(strings.ToLower(cleaned), "_")
	kept := words[:0]
	for _, w := range words {
		if w != "" {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return "Unknown error"
	}
	kept[0] = capitalize(kept[0])
	return strings.Join(kept, " ")
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
