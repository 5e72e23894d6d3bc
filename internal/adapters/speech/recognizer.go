// Package speech streams local audio to a continuous recognition and
// translation service over a websocket.
package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyStarted = errors.New("recognizer already started")

type Config struct {
	// Endpoint is the service URL. A %s is replaced by the token's region.
	Endpoint    string        `mapstructure:"endpoint"`
	AudioFormat string        `mapstructure:"audio_format"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// StreamRecognizer implements core.RecognitionSource.
type StreamRecognizer struct {
	cfg    Config
	token  core.SpeechToken
	recog  core.RecognitionConfig
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	stopped bool
}

var _ core.RecognitionSource = (*StreamRecognizer)(nil)

func NewStreamRecognizer(cfg Config, token core.SpeechToken, recog core.RecognitionConfig) *StreamRecognizer {
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "opus"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &StreamRecognizer{
		cfg:    cfg,
		token:  token,
		recog:  recog,
		logger: log.With().Str("module", "speech").Str("region", token.Region).Logger(),
	}
}

func (r *StreamRecognizer) endpoint() string {
	if strings.Contains(r.cfg.Endpoint, "%s") {
		return fmt.Sprintf(r.cfg.Endpoint, r.token.Region)
	}
	return r.cfg.Endpoint
}

// Start dials the service, sends the recognition config and begins
// streaming audio. Events are delivered to onEvent from a single
// goroutine.
func (r *StreamRecognizer) Start(ctx context.Context, audio <-chan []byte, onEvent func(core.RecognitionEvent)) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.DialTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token.Token)
	conn, _, err := dialer.DialContext(ctx, r.endpoint(), header)
	if err != nil {
		return fmt.Errorf("dial recognizer: %w", err)
	}

	cfg := configFrame{
		Type:               frameConfig,
		PrimaryLanguage:    r.recog.PrimaryLanguage,
		CandidateLanguages: r.recog.CandidateLanguages,
		TargetLanguages:    r.recog.TargetLanguages,
		LanguageIDMode:     string(r.recog.LanguageIDMode),
		AudioFormat:        r.cfg.AudioFormat,
	}
	if err := conn.WriteJSON(cfg); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send recognizer config: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		_ = conn.Close()
		return nil
	}
	r.conn = conn
	r.cancel = cancel
	r.mu.Unlock()

	go r.writePump(runCtx, conn, audio)
	go r.readPump(runCtx, conn, onEvent)
	r.logger.Info().Str("primary", r.recog.PrimaryLanguage).Strs("targets", r.recog.TargetLanguages).Msg("recognition started")
	return nil
}

func (r *StreamRecognizer) writePump(ctx context.Context, conn *websocket.Conn, audio <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-audio:
			if !ok {
				r.logger.Info().Msg("audio tap closed")
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				if ctx.Err() == nil {
					r.logger.Error().Err(err).Msg("writePump write error")
				}
				return
			}
		}
	}
}

func (r *StreamRecognizer) readPump(ctx context.Context, conn *websocket.Conn, onEvent func(core.RecognitionEvent)) {
	for {
		var f eventFrame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error().Err(err).Msg("readPump read error")
			onEvent(core.RecognitionEvent{Kind: core.RecognitionCanceled, Reason: err.Error()})
			return
		}
		ev, ok := f.event()
		if !ok {
			r.logger.Warn().Str("type", f.Type).Msg("unknown recognizer frame")
			continue
		}
		if ctx.Err() != nil {
			return
		}
		onEvent(ev)
		if ev.Kind == core.RecognitionCanceled || ev.Kind == core.RecognitionSessionStopped {
			return
		}
	}
}

// Stop ends recognition without waiting for the service.
func (r *StreamRecognizer) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	conn, cancel := r.conn, r.cancel
	r.conn, r.cancel = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	r.logger.Info().Msg("recognition stopped")
	return conn.Close()
}
