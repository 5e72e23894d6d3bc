package media

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// PacketReader is an RTP source, either a remote WebRTC track or a UDP
// ingest socket.
type PacketReader interface {
	ReadRTP() (*rtp.Packet, error)
}

// Relay copies packets from one source to a set of named sinks.
type Relay struct {
	Src PacketReader

	mu    sync.RWMutex
	sinks map[string]*Sink

	cancel context.CancelFunc
}

func NewRelay(src PacketReader, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:    src,
		sinks:  make(map[string]*Sink),
		cancel: cancel,
	}
}

// loop forwards packets until the source fails or ctx ends.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay stopped")
			r.retireAll()
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("relay read RTP error, stopping")
			}
			r.retireAll()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	var retired []string
	for name, s := range snapshot {
		switch s.State() {
		case SinkRetired:
			retired = append(retired, name)
		case SinkMuted:
		case SinkActive:
			if err := s.write(pkt); err != nil {
				logger.Error().Err(err).Str("sink", name).Msg("write RTP failed, retiring sink")
				s.Retire()
				retired = append(retired, name)
			}
		}
	}
	if len(retired) > 0 {
		r.drop(retired)
	}
}

func (r *Relay) drop(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if s, ok := r.sinks[name]; ok && s.State() == SinkRetired {
			delete(r.sinks, name)
		}
	}
}

func (r *Relay) retireAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		s.Retire()
	}
}

// AddSink attaches w under name, replacing any sink of that name.
func (r *Relay) AddSink(name string, w PacketWriter) *Sink {
	s := newSink(w)
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sinks[name]; ok {
		old.Retire()
	}
	r.sinks[name] = s
	return s
}

func (r *Relay) Sink(name string) (*Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	return s, ok
}
