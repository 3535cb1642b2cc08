package mqttremote

import "testing"

func TestDecodePayloadValid(t *testing.T) {
	p, err := decodePayload([]byte(`{"checkType":"disk","data":{"usedPercent":91.5}}`))
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if p.CheckType != "disk" {
		t.Fatalf("checkType = %q, want disk", p.CheckType)
	}
	if p.Data["usedPercent"] != 91.5 {
		t.Fatalf("data[usedPercent] = %v, want 91.5", p.Data["usedPercent"])
	}
}

func TestDecodePayloadMissingCheckType(t *testing.T) {
	if _, err := decodePayload([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for missing checkType")
	}
}

func TestDecodePayloadMalformed(t *testing.T) {
	if _, err := decodePayload([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
