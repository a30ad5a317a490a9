package apierror

import (
	"regexp"
	"strings"
)

// Patterns that indicate internal or sensitive detail no external caller or
// persisted event payload should see: database internals, rail-provider
// connection/credential leakage, and raw bank routing/account numbers that
// sometimes surface in a provider's rejection message.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pq:|pgx:|sql:|postgres`),
	regexp.MustCompile(`(?i)connection|timeout|refused`),
	regexp.MustCompile(`(?i)/var/|/tmp/|/home/|/app/|\.go:\d+`),
	regexp.MustCompile(`(?i)dial tcp|network|socket`),
	regexp.MustCompile(`(?i)panic|runtime error`),
	regexp.MustCompile(`(?i)internal server|stack trace`),
	regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`), // IP addresses
	regexp.MustCompile(`(?i)api[_-]?key|api[_-]?secret|client[_-]?secret|webhook[_-]?secret|bearer\s`),
	regexp.MustCompile(`(?i)routing[_-]?number|account[_-]?number|\baba\b`),
}

const genericError = "An internal error occurred"

// Sanitize strips provider/infrastructure detail out of an error message
// before it reaches an API response or a persisted event payload. Safe
// messages (validation failures, calculation/transition errors) pass through
// unchanged so a caller or auditor can still act on them.
func Sanitize(msg string) string {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(msg) {
			return genericError
		}
	}

	// Additional check for file paths
	if strings.Contains(msg, "/") && (strings.Contains(msg, "open") || strings.Contains(msg, "read") || strings.Contains(msg, "write")) {
		return genericError
	}

	return msg
}
