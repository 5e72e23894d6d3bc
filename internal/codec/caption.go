package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/domain"
)

const captionType = "caption"

var ErrMalformedCaption = errors.New("malformed caption")

// CaptionWire is the data channel form of a caption record. T is the
// record timestamp in epoch milliseconds.
type CaptionWire struct {
	Type       string `json:"type"`
	T          int64  `json:"t"`
	SrcLang    string `json:"srcLang"`
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

func EncodeCaption(rec domain.CaptionRecord) ([]byte, error) {
	return json.Marshal(CaptionWire{
		Type:       captionType,
		T:          rec.Timestamp.UnixMilli(),
		SrcLang:    rec.SourceLanguage,
		Original:   rec.OriginalText,
		Translated: rec.TranslatedText,
	})
}

func DecodeCaption(data []byte) (CaptionWire, error) {
	var w CaptionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return CaptionWire{}, fmt.Errorf("%w: %v", ErrMalformedCaption, err)
	}
	if w.Type != captionType {
		return CaptionWire{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedCaption, w.Type)
	}
	return w, nil
}

// Record rebuilds a caption record from the wire form. The sender's id is
// not carried, so the receiver assigns its own.
func (w CaptionWire) Record(id string, origin domain.Origin) domain.CaptionRecord {
	return domain.CaptionRecord{
		ID:             id,
		Origin:         origin,
		Timestamp:      time.UnixMilli(w.T),
		SourceLanguage: w.SrcLang,
		OriginalText:   w.Original,
		TranslatedText: w.Translated,
	}
}
