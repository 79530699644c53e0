package logging

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// MaxBodyLogLength is the maximum length of a response body excerpt to log
	MaxBodyLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match potential API keys and tokens passed as key=value
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|access[_-]?token|token|secret)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// sensitiveParams are query parameter names whose values are never logged.
var sensitiveParams = map[string]bool{
	"token":        true,
	"access_token": true,
	"api_key":      true,
	"apikey":       true,
	"key":          true,
	"secret":       true,
	"password":     true,
	"signature":    true,
	"sig":          true,
}

// SanitizeURL redacts userinfo and sensitive query parameter values.
// Feed URLs frequently carry access tokens in the query string.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return SanitizeString(raw)
	}

	if u.User != nil {
		u.User = url.User(RedactedText)
	}

	query := u.Query()
	changed := false
	for name := range query {
		if sensitiveParams[strings.ToLower(name)] {
			query.Set(name, RedactedText)
			changed = true
		}
	}
	if changed {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")

	return sanitized
}

// SanitizeError sanitizes error messages that might embed URLs or credentials.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString applies every redaction pattern to free text.
func SanitizeString(s string) string {
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
	return sanitized
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
