package log

import (
	"fmt"
	"strings"
)

// payloadPreviewLimit caps how much of an operation payload may appear in a
// log line. Payloads are caller data and may carry sensitive content.
const payloadPreviewLimit = 64

// SanitizeField checks if the key contains sensitive keywords and sanitizes
// the value accordingly.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	// Operation payloads and results are only ever previewed, never logged whole
	if isPayloadKey(lowerKey) {
		return truncatePayload(value)
	}

	// Emails get partial masking
	if strings.Contains(lowerKey, "email") || strings.Contains(lowerKey, "mail") {
		return sanitizeEmail(value)
	}

	sensitiveKeywords := []string{
		"password", "passwd", "pwd",
		"token", "access_token", "bearer",
		"secret", "auth", "authorization",
		"credential", "private_key", "privatekey",
		"encryption_key", "api_key", "apikey",
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(value)
		}
	}

	return value
}

// isPayloadKey reports whether the key names caller-supplied request content.
func isPayloadKey(lowerKey string) bool {
	switch lowerKey {
	case "payload", "result", "progress", "body":
		return true
	}
	return false
}

// truncatePayload keeps a short prefix and the original length.
// 示例: {"query":"..."} (213 bytes)
func truncatePayload(value string) string {
	if len(value) <= payloadPreviewLimit {
		return value
	}
	return fmt.Sprintf("%s… (%d bytes)", value[:payloadPreviewLimit], len(value))
}

// sanitizeToken masks secret values showing only first 4 and last 4 characters.
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// sanitizeEmail masks an email address keeping the first 3 characters of the
// local part and the full domain.
func sanitizeEmail(value string) string {
	parts := strings.Split(value, "@")
	if len(parts) != 2 {
		return strings.Repeat("*", len(value))
	}

	localPart := parts[0]
	domain := parts[1]

	if len(localPart) <= 3 {
		if len(localPart) == 0 {
			return "@" + domain
		}
		return string(localPart[0]) + strings.Repeat("*", len(localPart)-1) + "@" + domain
	}

	return localPart[:3] + "***@" + domain
}
