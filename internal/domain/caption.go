package domain

import "time"

type Origin string

const (
	OriginSelf Origin = "self"
	OriginPeer Origin = "peer"
)

// CaptionRecord is one finalized utterance. Records are never mutated after
// construction.
type CaptionRecord struct {
	ID             string
	Origin         Origin
	Timestamp      time.Time
	SourceLanguage string
	OriginalText   string
	TranslatedText string
}

// PartialCaption is the in-progress utterance shown while recognition is
// still revising it.
type PartialCaption struct {
	Text        string
	Translation string
}

func (p PartialCaption) String() string {
	return p.Text + " → " + p.Translation
}
