package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/core"
)

const (
	DefaultSTSURL = "https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken"
	DefaultTTSURL = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
)

var (
	ErrNotConfigured = errors.New("speech key or region missing")
	ErrEmptyText     = errors.New("text is required")
)

type ServiceConfig struct {
	Key    string `mapstructure:"key"`
	Region string `mapstructure:"region"`
	// STSURL and TTSURL take the region through %s.
	STSURL string `mapstructure:"sts_url"`
	TTSURL string `mapstructure:"tts_url"`
	// Voices maps a base language to a synthesis voice.
	Voices map[string]string `mapstructure:"voices"`
}

// AudioFormat is a synthesis output format.
type AudioFormat struct {
	Header string
	MIME   string
	Ext    string
}

var audioFormats = map[string]AudioFormat{
	"mp3": {Header: "audio-16khz-128kbitrate-mono-mp3", MIME: "audio/mpeg", Ext: "mp3"},
	"wav": {Header: "riff-16khz-16bit-mono-pcm", MIME: "audio/wav", Ext: "wav"},
}

var defaultVoices = map[string]string{
	"ja": "ja-JP-NanamiNeural",
	"zh": "zh-CN-YunyiMultilingualNeural",
}

// Service holds the subscription key. It runs server side only.
type Service struct {
	cfg  ServiceConfig
	http *http.Client
}

func NewService(cfg ServiceConfig, httpClient *http.Client) *Service {
	if cfg.STSURL == "" {
		cfg.STSURL = DefaultSTSURL
	}
	if cfg.TTSURL == "" {
		cfg.TTSURL = DefaultTTSURL
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = defaultVoices
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{cfg: cfg, http: httpClient}
}

func (s *Service) Configured() bool { return s.cfg.Key != "" && s.cfg.Region != "" }

func (s *Service) url(tmpl string) string {
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, s.cfg.Region)
	}
	return tmpl
}

// IssueToken exchanges the subscription key for a short-lived bearer token.
func (s *Service) IssueToken(ctx context.Context) (core.SpeechToken, error) {
	if !s.Configured() {
		return core.SpeechToken{}, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url(s.cfg.STSURL), nil)
	if err != nil {
		return core.SpeechToken{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.Key)

	resp, err := s.http.Do(req)
	if err != nil {
		return core.SpeechToken{}, fmt.Errorf("issueToken: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return core.SpeechToken{}, fmt.Errorf("issueToken: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return core.SpeechToken{}, fmt.Errorf("issueToken failed: HTTP %d", resp.StatusCode)
	}
	return core.SpeechToken{Token: string(body), Region: s.cfg.Region}, nil
}

type SynthesisRequest struct {
	Text   string `json:"text"`
	Target string `json:"target"`
	Format string `json:"format"`
	Voice  string `json:"voice"`
}

// Synthesize renders text to audio. Target defaults to ja and Format to mp3.
func (s *Service) Synthesize(ctx context.Context, r SynthesisRequest) ([]byte, AudioFormat, error) {
	if !s.Configured() {
		return nil, AudioFormat{}, ErrNotConfigured
	}
	if strings.TrimSpace(r.Text) == "" {
		return nil, AudioFormat{}, ErrEmptyText
	}
	format, ok := audioFormats[r.Format]
	if !ok {
		format = audioFormats["mp3"]
	}
	voice := r.Voice
	if voice == "" {
		voice = s.cfg.Voices[r.Target]
	}
	if voice == "" {
		voice = s.cfg.Voices["ja"]
	}

	token, err := s.IssueToken(ctx)
	if err != nil {
		return nil, AudioFormat{}, err
	}
	ssml, err := buildSSML(r.Text, voice)
	if err != nil {
		return nil, AudioFormat{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url(s.cfg.TTSURL), bytes.NewReader(ssml))
	if err != nil {
		return nil, AudioFormat{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", format.Header)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, AudioFormat{}, fmt.Errorf("tts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, AudioFormat{}, fmt.Errorf("tts failed: HTTP %d: %s", resp.StatusCode, detail)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, AudioFormat{}, fmt.Errorf("tts: %w", err)
	}
	return audio, format, nil
}

func buildSSML(text, voice string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`<speak version="1.0" xml:lang="en-US"><voice name="`)
	if err := xml.EscapeText(&b, []byte(voice)); err != nil {
		return nil, err
	}
	b.WriteString(`">`)
	if err := xml.EscapeText(&b, []byte(text)); err != nil {
		return nil, err
	}
	b.WriteString(`</voice></speak>`)
	return b.Bytes(), nil
}
