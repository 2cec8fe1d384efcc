package privacy

import (
	"testing"
)

func TestMaskIdempotencyKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"7f9c2a4e-5d1b-4c8e-9a3f-1b2c3d4e5f60", "7f9c2a4e-****-****-****-************"},
		{"abcdefghijkl", "abcdefgh****"},
		{"short", "*****"},
		{"", ""},
	}

	for _, test := range tests {
		result := MaskIdempotencyKey(test.input)
		if result != test.expected {
			t.Errorf("MaskIdempotencyKey(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskNodeID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"watch-living-room", "*************room"},
		{"phone", "*hone"},
		{"abc", "***"},
		{"", ""},
	}

	for _, test := range tests {
		result := MaskNodeID(test.input)
		if result != test.expected {
			t.Errorf("MaskNodeID(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskPeerURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ws://user:pw@phone.local:8082/ws?token=x", "ws://phone.local:8082/ws"},
		{"ws://127.0.0.1:8082/ws", "ws://127.0.0.1:8082/ws"},
		{"not a url", "***** url"},
		{"", ""},
	}

	for _, test := range tests {
		result := MaskPeerURL(test.input)
		if result != test.expected {
			t.Errorf("MaskPeerURL(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskSensitiveFields(t *testing.T) {
	if MaskSensitiveFields(nil) != nil {
		t.Error("expected nil for nil input")
	}

	fields := map[string]interface{}{
		"idempotency_key": "7f9c2a4e-5d1b-4c8e-9a3f-1b2c3d4e5f60",
		"node_id":         "phone",
		"attempt":         3,
		"path":            "/match_finished",
	}

	masked := MaskSensitiveFields(fields)

	if masked["idempotency_key"] != "7f9c2a4e-****-****-****-************" {
		t.Errorf("idempotency_key not masked: %v", masked["idempotency_key"])
	}
	if masked["node_id"] != "*hone" {
		t.Errorf("node_id not masked: %v", masked["node_id"])
	}
	if masked["attempt"] != 3 {
		t.Errorf("non-string field changed: %v", masked["attempt"])
	}
	if masked["path"] != "/match_finished" {
		t.Errorf("unrelated field changed: %v", masked["path"])
	}
	if fields["node_id"] != "phone" {
		t.Error("input map was modified")
	}
}
