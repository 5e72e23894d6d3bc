package captions

import (
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/codec"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// ChannelLabel is the only data channel label captions travel on.
const ChannelLabel = "captions"

// LanguagePair is the translation direction policy: speech in the primary
// language is translated to the secondary one and everything else to the
// primary.
type LanguagePair struct {
	Primary   string
	Secondary string
}

func (p LanguagePair) TargetFor(detected string) string {
	if sameBase(detected, p.Primary) {
		return p.Secondary
	}
	return p.Primary
}

func sameBase(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.HasPrefix(strings.ToLower(a), strings.ToLower(b))
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}

// Pipeline feeds recognition results into a History and mirrors final
// captions over the peer data channel.
type Pipeline struct {
	pair    LanguagePair
	history *History
	logger  zerolog.Logger
	now     func() time.Time

	mu   sync.Mutex
	send core.DataChannel
}

func NewPipeline(history *History, pair LanguagePair) *Pipeline {
	return &Pipeline{
		pair:    pair,
		history: history,
		logger:  log.With().Str("module", "captions").Logger(),
		now:     time.Now,
	}
}

func (p *Pipeline) History() *History { return p.history }

// HandleRecognition processes interim and final events. Other kinds are
// the session's concern and are ignored here.
func (p *Pipeline) HandleRecognition(ev core.RecognitionEvent) {
	switch ev.Kind {
	case core.RecognitionInterim:
		p.history.SetPartial(domain.PartialCaption{
			Text:        ev.Text,
			Translation: p.translation(ev),
		})
	case core.RecognitionFinal:
		if ev.Text == "" {
			return
		}
		rec := domain.CaptionRecord{
			ID:             uuid.NewString(),
			Origin:         domain.OriginSelf,
			Timestamp:      p.now(),
			SourceLanguage: ev.Language,
			OriginalText:   ev.Text,
			TranslatedText: p.translation(ev),
		}
		p.history.Add(rec)
		p.history.ClearPartial()
		p.mirror(rec)
	}
}

func (p *Pipeline) translation(ev core.RecognitionEvent) string {
	target := p.pair.TargetFor(ev.Language)
	if t, ok := ev.Translations[target]; ok {
		return t
	}
	for lang, t := range ev.Translations {
		if sameBase(lang, target) {
			return t
		}
	}
	return ""
}

func (p *Pipeline) mirror(rec domain.CaptionRecord) {
	p.mu.Lock()
	dc := p.send
	p.mu.Unlock()
	if dc == nil || !dc.IsOpen() {
		return
	}
	data, err := codec.EncodeCaption(rec)
	if err != nil {
		p.logger.Error().Err(err).Msg("encode caption")
		return
	}
	if err := dc.SendText(string(data)); err != nil {
		p.logger.Warn().Err(err).Msg("send caption")
	}
}

// AttachSend makes dc the channel final captions are mirrored on.
func (p *Pipeline) AttachSend(dc core.DataChannel) bool {
	if dc.Label() != ChannelLabel {
		return false
	}
	p.mu.Lock()
	p.send = dc
	p.mu.Unlock()
	p.Bind(dc)
	return true
}

func (p *Pipeline) DetachSend() {
	p.mu.Lock()
	p.send = nil
	p.mu.Unlock()
}

// Bind ingests captions arriving on dc. Channels with another label are
// left alone.
func (p *Pipeline) Bind(dc core.DataChannel) bool {
	if dc.Label() != ChannelLabel {
		p.logger.Debug().Str("label", dc.Label()).Msg("ignoring data channel")
		return false
	}
	dc.OnMessage(p.Ingest)
	return true
}

// Ingest appends a caption received from the peer. Malformed payloads are
// dropped.
func (p *Pipeline) Ingest(data []byte) {
	w, err := codec.DecodeCaption(data)
	if err != nil {
		p.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping peer caption")
		return
	}
	p.history.Add(w.Record(uuid.NewString(), domain.OriginPeer))
}
