package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces values that must never reach the logs.
const RedactedValue = "[REDACTED]"

// accountPrefix is the human readable part of farm account addresses.
const accountPrefix = "xfarm1"

var publicKeys = map[string]struct{}{
	"service":    {},
	"env":        {},
	"component":  {},
	"error":      {},
	"op":         {},
	"pool":       {},
	"height":     {},
	"path":       {},
	"route":      {},
	"status":     {},
	"request_id": {},
}

// IsAllowlisted reports whether values logged under key are emitted verbatim.
func IsAllowlisted(key string) bool {
	_, ok := publicKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue shortens farm account addresses to their prefix and last four
// characters so log lines stay correlatable. Any other non-empty value is
// replaced by RedactedValue.
func MaskValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, accountPrefix) && len(lower) > len(accountPrefix)+8 {
		return lower[:len(accountPrefix)+4] + "..." + lower[len(lower)-4:]
	}
	return RedactedValue
}

// MaskField returns value under key, masked unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
