package logging

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const redactedPlaceholder = "********"

func hideAPIKey(apiKey string) string {
	if len(apiKey) > 8 {
		return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
	} else if len(apiKey) > 4 {
		return apiKey[:2] + "..." + apiKey[len(apiKey)-2:]
	} else if len(apiKey) > 2 {
		return apiKey[:1] + "..." + apiKey[len(apiKey)-1:]
	}
	return apiKey
}

func maskAuthorizationHeader(value string) string {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) < 2 {
		return hideAPIKey(value)
	}
	return parts[0] + " " + hideAPIKey(parts[1])
}

// MaskHeaderValue masks values of credential-bearing headers and returns all
// other header values unchanged.
func MaskHeaderValue(key, value string) string {
	lowerKey := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.Contains(lowerKey, "authorization"):
		return maskAuthorizationHeader(value)
	case strings.Contains(lowerKey, "api-key"),
		strings.Contains(lowerKey, "apikey"),
		strings.Contains(lowerKey, "token"),
		strings.Contains(lowerKey, "secret"):
		return hideAPIKey(value)
	default:
		return value
	}
}

// secretPayloadFields are JSON keys whose values must never reach log output.
var secretPayloadFields = []string{
	"api_key",
	"client_secret",
	"access_token",
	"refresh_token",
	"image",
	"mask",
	"background_image",
	"file",
}

// ScrubPayload replaces secret and binary fields in a JSON payload with a
// placeholder so the document can be logged at debug level. Invalid JSON is
// returned unchanged.
func ScrubPayload(payload []byte) []byte {
	if !gjson.ValidBytes(payload) {
		return payload
	}
	out := payload
	for _, field := range secretPayloadFields {
		if gjson.GetBytes(out, field).Exists() {
			if patched, err := sjson.SetBytes(out, field, redactedPlaceholder); err == nil {
				out = patched
			}
		}
	}
	return out
}
