package core

import "strings"

const RedactedValue = "[REDACTED]"

// secretKeyParts marks a key as secret when any part appears in it. Record
// identifiers in visibleKeys win over the match.
var (
	secretKeyParts = []string{
		"password", "secret", "token", "authorization", "api_key", "api-key", "apikey",
		"access_key", "refresh", "credential", "signature",
	}
	visibleKeys = map[string]struct{}{
		"vendor":            {},
		"user_id":           {},
		"entity_id":         {},
		"credential_id":     {},
		"external_id":       {},
		"notification_kind": {},
		"auth_is_valid":     {},
		"status_code":       {},
		"trace_id":          {},
		"request_id":        {},
	}
)

// RedactSensitiveMap copies metadata with secret values replaced, walking
// nested maps and slices.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if IsSecretKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

// IsSecretKey reports whether values stored under key are redacted.
func IsSecretKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := visibleKeys[key]; ok {
		return false
	}
	if key == "code" {
		return true
	}
	for _, part := range secretKeyParts {
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
		for key, item := range typed {
			out[key] = item
		}
		return RedactSensitiveMap(out)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = RedactSensitiveMap(item)
		}
		return out
	default:
		return value
	}
}
