package privacy

import (
	"net/url"
	"strings"

	"scorelink/internal/constants"
)

// MaskIdempotencyKey keeps the first segment of a UUID-style key so log lines for one
// entry can still be correlated.
// Example: "7f9c2a4e-5d1b-4c8e-9a3f-1b2c3d4e5f60" -> "7f9c2a4e-****-****-****-************"
func MaskIdempotencyKey(key string) string {
	if key == "" {
		return ""
	}

	if strings.Count(key, "-") == 4 {
		parts := strings.Split(key, "-")
		for i := 1; i < len(parts); i++ {
			parts[i] = strings.Repeat("*", len(parts[i]))
		}
		return strings.Join(parts, "-")
	}

	return maskPrefix(key, constants.DefaultKeyMaskLength)
}

// MaskNodeID masks a node identifier, leaving the last 4 characters visible
// Example: "watch-living-room" -> "*************room"
func MaskNodeID(nodeID string) string {
	if nodeID == "" {
		return ""
	}
	return maskString(nodeID, 4)
}

// MaskPeerURL drops credentials and query parameters from a peer URL
// Example: "ws://user:pw@phone.local:8082/ws?token=x" -> "ws://phone.local:8082/ws"
func MaskPeerURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return maskString(raw, 4)
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// maskPrefix masks a string showing only the first n characters
func maskPrefix(s string, keepFirst int) string {
	if len(s) <= keepFirst {
		return strings.Repeat("*", len(s))
	}
	return s[:keepFirst] + strings.Repeat("*", len(s)-keepFirst)
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}

		switch k {
		case "idempotency_key", "key", "replaced_key":
			masked[k] = MaskIdempotencyKey(s)
		case "node_id", "target_node_id", "source_node_id":
			masked[k] = MaskNodeID(s)
		case "peer", "peer_url":
			masked[k] = MaskPeerURL(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
