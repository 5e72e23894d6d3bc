package core

import "context"

type RecognitionKind int

const (
	RecognitionInterim RecognitionKind = iota
	RecognitionFinal
	RecognitionCanceled
	RecognitionSessionStopped
)

func (k RecognitionKind) String() string {
	switch k {
	case RecognitionInterim:
		return "interim"
	case RecognitionFinal:
		return "final"
	case RecognitionCanceled:
		return "canceled"
	case RecognitionSessionStopped:
		return "session_stopped"
	default:
		return "unknown"
	}
}

// RecognitionEvent is one event of a continuous recognition/translation
// stream. Translations is keyed by target language code.
type RecognitionEvent struct {
	Kind         RecognitionKind
	Text         string
	Language     string
	Translations map[string]string
	Reason       string
}

type LanguageIDMode string

const (
	LanguageIDContinuous LanguageIDMode = "Continuous"
	LanguageIDAtStart    LanguageIDMode = "AtStart"
)

type RecognitionConfig struct {
	PrimaryLanguage    string
	CandidateLanguages []string
	TargetLanguages    []string
	LanguageIDMode     LanguageIDMode
}

// RecognitionSource is a continuous speech recognition/translation engine.
type RecognitionSource interface {
	// Start begins recognition over audio and reports events to onEvent
	// until Stop is called or the engine ends the session.
	Start(ctx context.Context, audio <-chan []byte, onEvent func(RecognitionEvent)) error
	Stop() error
}
