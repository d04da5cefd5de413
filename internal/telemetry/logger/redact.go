package logger

import (
	"log/slog"
	"strings"
)

// sensitiveValuePrefixes mark plaintext secrets that are partially masked
// wherever they appear.
var sensitiveValuePrefixes = []string{
	"nmcs_", // worker connection secret
}

// sensitiveKeyPatterns fully redact string values of matching keys.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"bearer",
	"private_key",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if prefix, ok := sensitivePrefix(s); ok {
			return slog.String(a.Key, maskValue(s, prefix))
		}
		if s != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskValue keeps the prefix and three characters on each side.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

func sensitivePrefix(s string) (string, bool) {
	for _, p := range sensitiveValuePrefixes {
		if strings.HasPrefix(s, p) {
			return p, true
		}
	}
	return "", false
}

// RedactString masks s if it is a connection secret.
func RedactString(s string) string {
	if prefix, ok := sensitivePrefix(s); ok {
		return maskValue(s, prefix)
	}
	return s
}

// IsSensitiveKey reports whether values logged under key are redacted.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether s is a connection secret.
func IsSensitiveValue(s string) bool {
	_, ok := sensitivePrefix(s)
	return ok
}
