package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxQueryLogLength bounds logged queries and model replies.
	MaxQueryLogLength = 100
	// RedactedText replaces anything that looks like a credential.
	RedactedText = "[REDACTED]"
)

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

var (
	// password=..., pwd=..., client_secret=... in DSNs and ADO-style strings.
	keyValueSecret = redaction{
		regexp.MustCompile(`(?i)\b(password|pwd|pass|client[_ ]secret)\s*=\s*[^;&\s]+`),
		"${1}=" + RedactedText,
	}
	// user:pass@host in URLs; the user name is kept.
	urlCredentials = redaction{
		regexp.MustCompile(`://([^:/@\s]+):[^@\s]+@`),
		"://${1}:" + RedactedText + "@",
	}
	bearerToken = redaction{
		regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]+`),
		"Bearer " + RedactedText,
	}
	// x-api-key: ..., api_key=..., "api_key": "..."
	apiKeyField = redaction{
		regexp.MustCompile(`(?i)\b(x-api-key|api[_-]?key|apikey)("?\s*[:=]\s*"?)[A-Za-z0-9._-]{8,}`),
		"${1}${2}" + RedactedText,
	}
	// Anthropic (sk-ant-...) and OpenAI-style (sk-...) secret keys.
	providerKey = redaction{
		regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
		RedactedText,
	}
	// PASSWORD 'literal' in generated DDL.
	sqlPassword = redaction{
		regexp.MustCompile(`(?i)\b(PASSWORD)\s+'(?:[^']|'')*'`),
		"${1} '" + RedactedText + "'",
	}
)

var (
	connectionRedactions = []redaction{keyValueSecret, urlCredentials}
	errorRedactions      = []redaction{keyValueSecret, urlCredentials, bearerToken, apiKeyField, providerKey}
	queryRedactions      = []redaction{sqlPassword, keyValueSecret, apiKeyField, providerKey}
)

func redact(s string, rules []redaction) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replace)
	}
	return s
}

// SanitizeConnectionString removes credentials from a catalog DSN before it is logged.
func SanitizeConnectionString(connStr string) string {
	return redact(connStr, connectionRedactions)
}

// SanitizeError flattens err into a message safe to log or return to callers.
// Catalog drivers echo DSNs and model SDKs echo request headers, so both are scrubbed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error(), errorRedactions)
}

// SanitizeQuery truncates a query or model reply and scrubs credentials from it.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return TruncateString(redact(query, queryRedactions), MaxQueryLogLength)
}

// TruncateString cuts s to at most maxLen bytes on a rune boundary and
// appends an ellipsis when anything was removed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
