package security

import (
	"net/url"
	"strings"
)

// sensitiveParams are query keys whose values are masked by RedactURL.
var sensitiveParams = []string{"token", "key", "secret", "password", "access_token", "sign"}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// RedactURL masks the password of a URL or DSN and the values of
// credential-looking query parameters. Anything without a scheme and host,
// such as a keyword DSN, is masked whole.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return MaskCredential(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	q := u.Query()
	changed := false
	for key := range q {
		if isSensitiveParam(key) {
			q.Set(key, "xxxxx")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func isSensitiveParam(key string) bool {
	key = strings.ToLower(key)
	for _, p := range sensitiveParams {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}
