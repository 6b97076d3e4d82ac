package core

import "strings"

const RedactedValue = "[REDACTED]"

// sensitiveKeyParts mark a key as secret when any of them appears in it.
var sensitiveKeyParts = []string{
	"access_key",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"password",
	"refresh",
	"secret",
	"signature",
	"token",
}

// loggableKeys are never masked even when they match a sensitive part,
// e.g. idempotency_key or delivery_id.
var loggableKeys = map[string]struct{}{
	"app_id":          {},
	"delivery_id":     {},
	"event_type":      {},
	"idempotency_key": {},
	"platform":        {},
	"request_id":      {},
	"resource":        {},
	"trace_id":        {},
}

// RedactSensitiveMap returns a copy of metadata with token and secret values
// masked at any depth. It never returns nil.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if IsSensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

// IsSensitiveKey reports whether values stored under key must not be logged.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := loggableKeys[key]; ok {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, inner := range typed {
			out[key] = inner
		}
		return RedactSensitiveMap(out)
	case []map[string]any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = RedactSensitiveMap(inner)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = redactValue(inner)
		}
		return out
	}
	return value
}
