package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// PacketWriter is anything RTP can be forwarded to: a local WebRTC track,
// a UDP playback sink or an audio tap.
type PacketWriter interface {
	WriteRTP(*rtp.Packet) error
}

type SinkState int32

const (
	SinkActive SinkState = iota
	SinkMuted
	// SinkRetired sinks are dropped by the relay on its next packet.
	SinkRetired
)

// Sink is one forwarding target of a Relay.
type Sink struct {
	w         PacketWriter
	state     atomic.Int32
	forwarded atomic.Uint64
}

func newSink(w PacketWriter) *Sink { return &Sink{w: w} }

func (s *Sink) State() SinkState { return SinkState(s.state.Load()) }

// SetMuted pauses or resumes a sink. A retired sink stays retired.
func (s *Sink) SetMuted(muted bool) {
	from, to := SinkActive, SinkMuted
	if !muted {
		from, to = SinkMuted, SinkActive
	}
	s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Sink) Retire() { s.state.Store(int32(SinkRetired)) }

// Forwarded counts packets written to the sink.
func (s *Sink) Forwarded() uint64 { return s.forwarded.Load() }

func (s *Sink) write(pkt *rtp.Packet) error {
	if err := s.w.WriteRTP(pkt); err != nil {
		return err
	}
	s.forwarded.Add(1)
	return nil
}
