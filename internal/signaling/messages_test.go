package signaling

import (
	"encoding/json"
	"testing"
)

func TestParseFrame(t *testing.T) {
	f, err := parseFrame([]byte(`{"type":"offer","to":"peer-2","sdp":"v=0"}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != "offer" {
		t.Errorf("kind = %q", f.Kind)
	}
	if f.To != "peer-2" {
		t.Errorf("to = %q", f.To)
	}
}

func TestParseFrame_ControlWithoutTarget(t *testing.T) {
	f, err := parseFrame([]byte(`{"type":"pong"}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != typePong || f.To != "" {
		t.Fatalf("frame = %+v", f)
	}
}

func TestParseFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "not json"},
		{"json null", "null"},
		{"array", "[1,2]"},
		{"missing type", `{"to":"x"}`},
		{"non-string type", `{"type":42}`},
		{"non-string to", `{"type":"offer","to":7}`},
		{"empty", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseFrame([]byte(tc.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRelayPayload_StripsTargetStampsSender(t *testing.T) {
	f, err := parseFrame([]byte(`{"type":"offer","to":"peer-2","sender":"forged","sdp":"v=0","nested":{"a":[1,2]}}`))
	if err != nil {
		t.Fatal(err)
	}

	payload, err := f.relayPayload("peer-1")
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatal(err)
	}

	if _, ok := out["to"]; ok {
		t.Error("relayed payload must not contain the to field")
	}

	var sender string
	if err := json.Unmarshal(out["sender"], &sender); err != nil || sender != "peer-1" {
		t.Errorf("sender = %q (err %v), want the server-stamped id", sender, err)
	}

	// Payload fields pass through byte-for-byte.
	if string(out["sdp"]) != `"v=0"` {
		t.Errorf("sdp = %s", out["sdp"])
	}
	if string(out["nested"]) != `{"a":[1,2]}` {
		t.Errorf("nested = %s", out["nested"])
	}
	if string(out["type"]) != `"offer"` {
		t.Errorf("type = %s", out["type"])
	}
}
