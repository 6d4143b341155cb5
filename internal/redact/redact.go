// Package redact provides utilities for redacting sensitive information from strings
// before they are logged or returned in error responses. Upstream providers echo
// request URLs and headers back in their errors, so API keys and bearer tokens
// routinely end up inside error strings; this package strips them.
package redact

import (
	"regexp"
	"strings"
	"sync"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

// Precompiled regex patterns
var (
	// Database connection strings
	dbConnRegex = regexp.MustCompile(`(?i)(postgres|postgresql|nats|db|database)://[^@\s]+@`)

	// API keys passed as query parameters (Gemini REST style: ?key=...)
	queryKeyRegex = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey|access_token)=)[^&\s"']+`)

	// Authorization headers
	bearerRegex = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`)

	// Provider key formats
	openAIKeyRegex = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}`)
	googleKeyRegex = regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{30,}`)

	// Generic key=value credentials
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|password)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// JWT token pattern - matches the standard three-part base64url-encoded JWT token format
	jwtTokenRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// File paths
	unixPathRegex = regexp.MustCompile(`(?:^|\s)(/[\w.-]+){2,}`)

	// ordered so that the specific patterns run before the generic ones
	patterns = []*regexp.Regexp{
		dbConnRegex, queryKeyRegex, bearerRegex, jwtTokenRegex,
		openAIKeyRegex, googleKeyRegex, apiKeyRegex, unixPathRegex,
	}

	patternReplacements = map[*regexp.Regexp]string{
		dbConnRegex:    "${1}://" + RedactedCredentialPlaceholder + "@",
		queryKeyRegex:  "${1}" + RedactedKeyPlaceholder,
		bearerRegex:    "${1}" + RedactedCredentialPlaceholder,
		jwtTokenRegex:  "[REDACTED_JWT]",
		openAIKeyRegex: RedactedKeyPlaceholder,
		googleKeyRegex: RedactedKeyPlaceholder,
		apiKeyRegex:    "${1}${2}" + RedactedKeyPlaceholder,
		unixPathRegex:  " " + RedactedPathPlaceholder,
	}

	mu      sync.RWMutex
	secrets []string
)

// RegisterSecrets adds literal values that must always be redacted, such as
// the configured upstream credentials. Empty values are ignored.
func RegisterSecrets(values ...string) {
	mu.Lock()
	defer mu.Unlock()
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		secrets = append(secrets, v)
	}
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	mu.RLock()
	defer mu.RUnlock()

	result := input
	for _, secret := range secrets {
		result = strings.ReplaceAll(result, secret, RedactedKeyPlaceholder)
	}
	for _, pattern := range patterns {
		replacement := RedactionPlaceholder
		if r, ok := patternReplacements[pattern]; ok {
			replacement = r
		}
		result = pattern.ReplaceAllString(result, replacement)
	}

	return strings.TrimSpace(result)
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}
