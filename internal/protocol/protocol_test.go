package protocol

import (
	"encoding/json"
	"testing"

	"github.com/projection-ui/host/internal/patch"
)

func TestEncodeReadyProducesMinimalEnvelope(t *testing.T) {
	out, err := EncodeReady(NewReady("S1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if decoded["t"] != "ready" || decoded["sid"] != "S1" {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
	caps, ok := decoded["capabilities"].(map[string]any)
	if !ok {
		t.Fatalf("capabilities missing or wrong type: %v", decoded)
	}
	if caps["m1"] != true || caps["transport"] != "stdio-packet-4" {
		t.Fatalf("unexpected capabilities: %v", caps)
	}
}

func TestEncodeIntentRoundTrip(t *testing.T) {
	payload := patch.EmptyObject()
	patch.SetPath(&payload, "/to", patch.String("devices"), false)

	out, err := EncodeIntent(NewIntent("S1", 7, "ui.route.navigate", payload))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if decoded["t"] != "intent" || decoded["sid"] != "S1" || decoded["name"] != "ui.route.navigate" {
		t.Fatalf("unexpected envelope: %v", decoded)
	}
	if decoded["id"].(float64) != 7 {
		t.Fatalf("unexpected id: %v", decoded["id"])
	}
}

func TestDecodeRenderWithArbitraryVM(t *testing.T) {
	payload := []byte(`{"t":"render","sid":"S1","rev":1,"vm":{"hello":"world","count":2,"items":["a","b"]}}`)
	in, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Render == nil {
		t.Fatal("expected Render, got nil")
	}
	if in.Render.Sid != "S1" || in.Render.Rev != 1 {
		t.Fatalf("unexpected render: %+v", in.Render)
	}
}

func TestDecodePatchWithOneReplaceOp(t *testing.T) {
	payload := []byte(`{"t":"patch","sid":"S1","rev":2,"ops":[{"op":"replace","path":"/any_field","value":"value-1"}]}`)
	in, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Patch == nil {
		t.Fatal("expected Patch, got nil")
	}
	if in.Patch.Sid != "S1" || in.Patch.Rev != 2 || len(in.Patch.Ops) != 1 {
		t.Fatalf("unexpected patch: %+v", in.Patch)
	}
	if in.Patch.Ack != nil {
		t.Fatalf("expected absent ack, got %v", *in.Patch.Ack)
	}
}

func TestDecodePatchWithAck(t *testing.T) {
	payload := []byte(`{"t":"patch","sid":"S1","rev":3,"ack":5,"ops":[]}`)
	in, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Patch.Ack == nil || *in.Patch.Ack != 5 {
		t.Fatalf("expected ack=5, got %v", in.Patch.Ack)
	}
}

func TestDecodeErrorEnvelope(t *testing.T) {
	payload := []byte(`{"t":"error","sid":"S1","code":"rev_mismatch","message":"boom"}`)
	in, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Err == nil || in.Err.Code != "rev_mismatch" || in.Err.Message != "boom" {
		t.Fatalf("unexpected error envelope: %+v", in.Err)
	}
	if in.Err.Rev != nil {
		t.Fatalf("expected absent rev, got %v", *in.Err.Rev)
	}
}

func TestDecodeUnknownTagFails(t *testing.T) {
	if _, err := Decode([]byte(`{"t":"bogus"}`)); err == nil {
		t.Fatal("expected unknown tag to fail decode")
	}
}

func TestDecodeUnknownPatchOpFails(t *testing.T) {
	payload := []byte(`{"t":"patch","sid":"S1","rev":1,"ops":[{"op":"bogus","path":"/a"}]}`)
	if _, err := Decode(payload); err == nil {
		t.Fatal("expected unknown op to fail decode")
	}
}

func TestResyncCodesCoverSpecifiedSet(t *testing.T) {
	want := []string{
		"decode_error", "frame_too_large", "invalid_envelope",
		"resync_required", "rev_mismatch", "patch_apply_error",
	}
	for _, code := range want {
		if !ResyncCodes[code] {
			t.Fatalf("expected %q to be a resync code", code)
		}
	}
	if ResyncCodes["something_informational"] {
		t.Fatal("did not expect an arbitrary code to be a resync code")
	}
}
