package langfuse

import (
	"net/url"
	"strings"
)

// RedactedValue replaces the value of every non allow-listed query parameter
// in sanitized URLs.
const RedactedValue = "[REDACTED]"

// loggableParams are query parameters that never carry user data.
var loggableParams = map[string]bool{
	"page":    true,
	"limit":   true,
	"orderBy": true,
	"view":    true,
	"fields":  true,
}

// SanitizeURL returns raw with the values of all query parameters outside
// the allow-list replaced by RedactedValue. Path and parameter order are kept.
// Unparsable input is reduced to a placeholder.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.Fragment = ""
	if u.RawQuery == "" {
		return u.String()
	}

	pairs := strings.Split(u.RawQuery, "&")
	out := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		rawKey, _, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err == nil && loggableParams[key] {
			out = append(out, pair)
			continue
		}
		out = append(out, rawKey+"="+RedactedValue)
	}

	u.RawQuery = ""
	return u.String() + "?" + strings.Join(out, "&")
}
