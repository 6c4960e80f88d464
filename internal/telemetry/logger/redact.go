package logger

import (
	"fmt"
	"strings"
)

// Value prefixes that are partially masked wherever they appear.
var sensitiveValuePrefixes = []string{
	"plas_", // API key secret
	"2@",    // pairing code
}

// Key fragments that mark a field as secret.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
	"auth",
	"bearer",
	"private",
	"pairing_code",
}

const redactedValue = "***REDACTED***"

// redactValue masks v when it looks like a secret or key names one.
// Maps are walked so nested details are covered too.
func redactValue(key string, v any) any {
	switch val := v.(type) {
	case string:
		return redactString(key, val)
	case fmt.Stringer:
		if IsSensitiveKey(key) {
			return redactString(key, val.String())
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = redactValue(k, inner)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, inner := range val {
			out[k] = redactString(k, inner)
		}
		return out
	default:
		return v
	}
}

func redactString(key, value string) string {
	if value == "" {
		return value
	}
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return maskValue(value, prefix)
		}
	}
	if strings.HasPrefix(value, "data:image/") {
		return "data:image/***"
	}
	if IsSensitiveKey(key) {
		return redactedValue
	}
	return value
}

// maskValue keeps the prefix and three characters at each end:
// prefix + first 3 + "..." + last 3.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks a value that looks like a secret, regardless of
// the key it will be logged under.
func RedactString(value string) string {
	return redactString("", value)
}

// IsSensitiveKey reports whether a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether a value carries a known secret prefix.
func IsSensitiveValue(value string) bool {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
