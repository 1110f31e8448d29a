package apierror

import (
	"regexp"
	"strings"
)

// Patterns that indicate internal/sensitive errors. Beyond the generic
// database/network/stack-trace classes, this module's own external
// surfaces get their own patterns: Microsoft Graph/OneDrive (C5's archive
// uploads and the OAuth token cache), SMTP (C6's notifications), and Redis
// (C9's availability cache) all produce error strings that can carry
// tenant ids, access tokens, or internal hostnames.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pq:|pgx:|sql:|postgres`),
	regexp.MustCompile(`(?i)connection|timeout|refused`),
	regexp.MustCompile(`(?i)/var/|/tmp/|/home/|/app/|\.go:\d+`),
	regexp.MustCompile(`(?i)dial tcp|network|socket`),
	regexp.MustCompile(`(?i)panic|runtime error`),
	regexp.MustCompile(`(?i)internal server|stack trace`),
	regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`), // IP addresses
	regexp.MustCompile(`(?i)graph\.microsoft\.com|graph api|onedrive|drive item|oauth2:|access_token|refresh_token|bearer `),
	regexp.MustCompile(`(?i)smtp:|\bsmtp\b.*(error|failed)|550 |421 |rcpt to|mail from`),
	regexp.MustCompile(`(?i)redis:|redis error|NOAUTH|WRONGTYPE`),
}

const genericError = "An internal error occurred"

// Sanitize removes sensitive information from error messages
// Safe messages (validation errors, format errors) are passed through
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
