package speech

import "github.com/dkeye/VoiceCaptions/internal/core"

// Frames exchanged with the recognition service. The client sends one
// config frame, then binary audio frames. The service answers with event
// frames.
type configFrame struct {
	Type               string   `json:"type"`
	PrimaryLanguage    string   `json:"primaryLanguage"`
	CandidateLanguages []string `json:"candidateLanguages,omitempty"`
	TargetLanguages    []string `json:"targetLanguages,omitempty"`
	LanguageIDMode     string   `json:"languageIdMode,omitempty"`
	AudioFormat        string   `json:"audioFormat"`
}

type eventFrame struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	Language     string            `json:"language,omitempty"`
	Translations map[string]string `json:"translations,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

const (
	frameConfig         = "config"
	frameRecognizing    = "recognizing"
	frameRecognized     = "recognized"
	frameCanceled       = "canceled"
	frameSessionStopped = "sessionStopped"
)

func (f eventFrame) event() (core.RecognitionEvent, bool) {
	ev := core.RecognitionEvent{
		Text:         f.Text,
		Language:     f.Language,
		Translations: f.Translations,
		Reason:       f.Reason,
	}
	switch f.Type {
	case frameRecognizing:
		ev.Kind = core.RecognitionInterim
	case frameRecognized:
		ev.Kind = core.RecognitionFinal
	case frameCanceled:
		ev.Kind = core.RecognitionCanceled
	case frameSessionStopped:
		ev.Kind = core.RecognitionSessionStopped
	default:
		return core.RecognitionEvent{}, false
	}
	return ev, true
}
