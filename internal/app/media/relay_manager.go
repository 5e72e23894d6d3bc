package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// RelayManager owns the relays of one call, keyed by source name.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[string]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[string]*Relay),
	}
}

// StartRelay creates a new Relay for src and starts its loop. Sinks are
// attached to it immediately, before the first packet is read.
func (m *RelayManager) StartRelay(ctx context.Context, name string, src PacketReader, sinks map[string]PacketWriter) *Relay {
	logger := log.With().
		Str("module", "relay").
		Str("src", name).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)
	for sinkName, sink := range sinks {
		relay.AddSink(sinkName, sink)
	}

	m.mu.Lock()
	if old, ok := m.relays[name]; ok {
		logger.Info().Msg("replacing existing relay")
		old.retireAll()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[name] = relay
	m.mu.Unlock()

	logger.Info().Int("sinks", len(sinks)).Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
	return relay
}

// AddSink attaches a sink to the relay of src.
func (m *RelayManager) AddSink(src, name string, sink PacketWriter) bool {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddSink(name, sink)
	return true
}

// SetMuted pauses or resumes forwarding from src to one sink.
func (m *RelayManager) SetMuted(src, name string, muted bool) bool {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	s, ok := relay.Sink(name)
	if !ok {
		return false
	}
	s.SetMuted(muted)
	return true
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(src string) {
	m.mu.Lock()
	relay, ok := m.relays[src]
	if ok {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.retireAll()
	if relay.cancel != nil {
		relay.cancel()
	}
}

func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[string]*Relay)
	m.mu.Unlock()
	for _, relay := range relays {
		relay.retireAll()
		if relay.cancel != nil {
			relay.cancel()
		}
	}
}

func (m *RelayManager) HasRelay(src string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[src]
	return ok
}
