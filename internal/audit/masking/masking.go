package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"email":        {},
	"phone":        {},
	"access_token": {},
	"reference":    {},
}

// MaskSecret redacts a value while keeping a short suffix so entries stay distinguishable.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of input with contact details and credentials masked.
// Nested maps are walked; other values are copied as-is.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			out[key] = MaskSensitive(cast)
		case string:
			if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
				out[key] = MaskSecret(cast)
			} else {
				out[key] = cast
			}
		default:
			out[key] = value
		}
	}
	return out
}
