package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values that are neither allowlisted nor
// account identifiers.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"tag":       {},
	"outcome":   {},
	"method":    {},
	"orderid":   {},
	"escrowid":  {},
}

// Account keys are logged partially so lines about the same party can still
// be correlated.
var accountKeys = map[string]struct{}{
	"payer":    {},
	"buyer":    {},
	"seller":   {},
	"courier":  {},
	"caller":   {},
	"account":  {},
	"receiver": {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether key is logged verbatim.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// MaskAccount keeps the first two characters of an account name and its
// namespace suffix: "alice.near" becomes "al***.near".
func MaskAccount(account string) string {
	trimmed := strings.TrimSpace(account)
	if trimmed == "" {
		return account
	}
	name, suffix := trimmed, ""
	if i := strings.LastIndexByte(trimmed, '.'); i > 0 {
		name, suffix = trimmed[:i], trimmed[i:]
	}
	runes := []rune(name)
	if len(runes) <= 2 {
		return "***" + suffix
	}
	return string(runes[:2]) + "***" + suffix
}

// MaskField builds a log attribute for key, masking the value unless the key
// is allowlisted. Account keys are partially masked, everything else is
// replaced with RedactedValue.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	if _, ok := accountKeys[normalizeKey(key)]; ok {
		return slog.String(key, MaskAccount(value))
	}
	return slog.String(key, RedactedValue)
}
