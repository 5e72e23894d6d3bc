package media

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// AudioListen and VideoListen are UDP addresses where an external
	// encoder sends RTP. Empty disables that kind.
	AudioListen string `mapstructure:"audio_listen"`
	VideoListen string `mapstructure:"video_listen"`
	// PlaybackAudio and PlaybackVideo receive the peer's RTP. Empty
	// discards it.
	PlaybackAudio string `mapstructure:"playback_audio"`
	PlaybackVideo string `mapstructure:"playback_video"`
	StreamID      string `mapstructure:"stream_id"`
	TapBuffer     int    `mapstructure:"tap_buffer"`
}

const (
	sinkTrack = "track"
	sinkTap   = "tap"
)

// RTPSource is the local side of a call. It ingests RTP over UDP, feeds it
// to the peer connection's local tracks and copies audio payloads to the
// recognition tap.
type RTPSource struct {
	cfg    Config
	relays *RelayManager
	tap    *tap

	mu      sync.Mutex
	readers map[core.MediaKind]*udpReader
	closed  bool
	once    sync.Once
}

var _ core.MediaSource = (*RTPSource)(nil)

// OpenRTPSource binds the ingest sockets.
func OpenRTPSource(cfg Config) (*RTPSource, error) {
	if cfg.StreamID == "" {
		cfg.StreamID = "local"
	}
	if cfg.TapBuffer <= 0 {
		cfg.TapBuffer = 256
	}
	s := &RTPSource{
		cfg:     cfg,
		relays:  NewRelayManager(),
		tap:     newTap(cfg.TapBuffer),
		readers: make(map[core.MediaKind]*udpReader),
	}
	for kind, addr := range map[core.MediaKind]string{core.MediaAudio: cfg.AudioListen, core.MediaVideo: cfg.VideoListen} {
		if addr == "" {
			continue
		}
		r, err := listenUDP(addr)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%s ingest: %w", kind, err)
		}
		s.readers[kind] = r
		log.Info().Str("module", "media").Str("kind", string(kind)).Str("addr", r.Addr().String()).Msg("listening for RTP")
	}
	return s, nil
}

// Attach adds one local track per ingest socket to pc and starts
// forwarding.
func (s *RTPSource) Attach(ctx context.Context, pc core.PeerConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("media source closed")
	}
	for kind, r := range s.readers {
		track, err := pc.AddLocalTrack(kind, s.cfg.StreamID)
		if err != nil {
			return err
		}
		sinks := map[string]PacketWriter{sinkTrack: track}
		if kind == core.MediaAudio {
			sinks[sinkTap] = s.tap
		}
		s.relays.StartRelay(ctx, "local-"+string(kind), r, sinks)
	}
	return nil
}

func (s *RTPSource) AudioTap() <-chan []byte { return s.tap.ch }

// Addr reports the bound ingest address of kind, or nil.
func (s *RTPSource) Addr(kind core.MediaKind) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.readers[kind]; ok {
		return r.Addr()
	}
	return nil
}

// SetMuted stops sending local media of kind to the peer. Recognition
// keeps receiving audio.
func (s *RTPSource) SetMuted(kind core.MediaKind, muted bool) bool {
	return s.relays.SetMuted("local-"+string(kind), sinkTrack, muted)
}

func (s *RTPSource) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		readers := s.readers
		s.readers = map[core.MediaKind]*udpReader{}
		s.mu.Unlock()

		s.relays.StopAll()
		for _, r := range readers {
			_ = r.Close()
		}
		close(s.tap.closed)
	})
	return nil
}

// Playback forwards the peer's tracks to the configured UDP sinks.
type Playback struct {
	cfg    Config
	relays *RelayManager

	mu    sync.Mutex
	sinks []*UDPSink
}

func NewPlayback(cfg Config) *Playback {
	return &Playback{cfg: cfg, relays: NewRelayManager()}
}

// OnTrack starts relaying track. Tracks without a configured sink are
// still drained so the peer connection keeps flowing.
func (p *Playback) OnTrack(ctx context.Context, track core.RemoteTrack) {
	addr := p.cfg.PlaybackAudio
	if track.Kind() == core.MediaVideo {
		addr = p.cfg.PlaybackVideo
	}
	sinks := map[string]PacketWriter{}
	if addr != "" {
		sink, err := DialUDPSink(addr)
		if err != nil {
			log.Error().Err(err).Str("module", "media").Str("track", track.ID()).Msg("playback sink")
		} else {
			p.mu.Lock()
			p.sinks = append(p.sinks, sink)
			p.mu.Unlock()
			sinks["playback"] = sink
		}
	}
	p.relays.StartRelay(ctx, "remote-"+track.ID(), track, sinks)
}

func (p *Playback) Close() error {
	p.relays.StopAll()
	p.mu.Lock()
	sinks := p.sinks
	p.sinks = nil
	p.mu.Unlock()
	for _, s := range sinks {
		_ = s.Close()
	}
	return nil
}
