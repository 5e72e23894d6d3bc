package codec

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeSignalWireShape(t *testing.T) {
	data, err := EncodeSignal(Offer("b3", json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	if err != nil {
		t.Fatalf("EncodeSignal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := string(raw["type"]); got != `"offer"` {
		t.Errorf("type = %s, want \"offer\"", got)
	}
	if got := string(raw["senderId"]); got != `"b3"` {
		t.Errorf("senderId = %s, want \"b3\"", got)
	}
	if got := string(raw["sdp"]); got != `{"type":"offer","sdp":"v=0"}` {
		t.Errorf("sdp = %s, want payload forwarded verbatim", got)
	}
	if _, ok := raw["candidate"]; ok {
		t.Errorf("candidate present on offer")
	}
}

func TestDecodeSignalKeepsPayloadOpaque(t *testing.T) {
	in := []byte(`{"type":"ice","senderId":"a1","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","x-extra":[1,2]}}`)
	msg, err := DecodeSignal(in)
	if err != nil {
		t.Fatalf("DecodeSignal: %v", err)
	}
	if msg.Type != SignalICE || msg.SenderID != "a1" {
		t.Fatalf("msg = %+v", msg)
	}
	want := `{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","x-extra":[1,2]}`
	if string(msg.Candidate) != want {
		t.Errorf("candidate = %s, want %s", msg.Candidate, want)
	}
}

func TestDecodeSignalRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"unknown type":      `{"type":"bye","senderId":"a"}`,
		"missing sender":    `{"type":"join"}`,
		"offer without sdp": `{"type":"offer","senderId":"a"}`,
		"answer null sdp":   `{"type":"answer","senderId":"a","sdp":null}`,
		"ice without cand":  `{"type":"ice","senderId":"a"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSignal([]byte(in))
			if !errors.Is(err, ErrMalformedSignal) {
				t.Errorf("err = %v, want ErrMalformedSignal", err)
			}
		})
	}
}

func TestEncodeSignalRejectsInvalid(t *testing.T) {
	if _, err := EncodeSignal(Join("")); !errors.Is(err, ErrMalformedSignal) {
		t.Errorf("err = %v, want ErrMalformedSignal", err)
	}
}
