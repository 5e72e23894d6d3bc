package codec

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/domain"
)

func TestCaptionRoundTrip(t *testing.T) {
	rec := domain.CaptionRecord{
		ID:             "local-1",
		Origin:         domain.OriginSelf,
		Timestamp:      time.UnixMilli(1718000000123),
		SourceLanguage: "ja-JP",
		OriginalText:   "こんにちは",
		TranslatedText: "你好",
	}
	data, err := EncodeCaption(rec)
	if err != nil {
		t.Fatalf("EncodeCaption: %v", err)
	}
	w, err := DecodeCaption(data)
	if err != nil {
		t.Fatalf("DecodeCaption: %v", err)
	}
	got := w.Record("remote-1", domain.OriginPeer)
	if got.Origin != domain.OriginPeer {
		t.Errorf("Origin = %q, want %q", got.Origin, domain.OriginPeer)
	}
	if !got.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, rec.Timestamp)
	}
	if got.SourceLanguage != rec.SourceLanguage || got.OriginalText != rec.OriginalText || got.TranslatedText != rec.TranslatedText {
		t.Errorf("record = %+v, want fields of %+v", got, rec)
	}
}

func TestEncodeCaptionWireShape(t *testing.T) {
	data, err := EncodeCaption(domain.CaptionRecord{
		Timestamp:      time.UnixMilli(42),
		SourceLanguage: "ja-JP",
		OriginalText:   "こんにちは",
		TranslatedText: "你好",
	})
	if err != nil {
		t.Fatalf("EncodeCaption: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{"type": "caption", "t": float64(42), "srcLang": "ja-JP", "original": "こんにちは", "translated": "你好"}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
	if len(m) != len(want) {
		t.Errorf("wire has %d keys, want %d", len(m), len(want))
	}
}

func TestDecodeCaptionMalformed(t *testing.T) {
	for _, in := range []string{`not json`, `{"type":"join","senderId":"x"}`, `[]`} {
		if _, err := DecodeCaption([]byte(in)); !errors.Is(err, ErrMalformedCaption) {
			t.Errorf("DecodeCaption(%q) err = %v, want ErrMalformedCaption", in, err)
		}
	}
}
