package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/core"
)

// fakePC reports connected once it has both descriptions and one remote
// candidate.
type fakePC struct {
	name string

	mu          sync.Mutex
	local       bool
	remote      bool
	remoteCands int
	addCalls    int
	connected   bool
	offers      int
	answers     int
	closes      int
	onCand      func(core.Payload)
	onState     func(core.TransportState)

	offerCalled chan struct{}
	offerGate   chan struct{}
}

func newFakePC(name string) *fakePC {
	return &fakePC{name: name, offerCalled: make(chan struct{}, 1)}
}

func (f *fakePC) factory() core.PeerConnectionFactory {
	return func(context.Context) (core.PeerConnection, error) { return f, nil }
}

func (f *fakePC) CreateOffer(ctx context.Context) (core.Payload, error) {
	select {
	case f.offerCalled <- struct{}{}:
	default:
	}
	if f.offerGate != nil {
		<-f.offerGate
	}
	f.mu.Lock()
	f.local = true
	f.offers++
	f.mu.Unlock()
	f.gather()
	return json.RawMessage(fmt.Sprintf(`{"type":"offer","sdp":%q}`, f.name)), nil
}

func (f *fakePC) AcceptOffer(ctx context.Context, offer core.Payload) (core.Payload, error) {
	f.mu.Lock()
	f.remote, f.local = true, true
	f.answers++
	f.mu.Unlock()
	f.gather()
	f.check()
	return json.RawMessage(fmt.Sprintf(`{"type":"answer","sdp":%q}`, f.name)), nil
}

func (f *fakePC) ApplyAnswer(ctx context.Context, answer core.Payload) error {
	f.mu.Lock()
	f.remote = true
	f.mu.Unlock()
	f.check()
	return nil
}

func (f *fakePC) AddICECandidate(c core.Payload) error {
	f.mu.Lock()
	f.addCalls++
	if !f.remote {
		f.mu.Unlock()
		return errors.New("no remote description")
	}
	f.remoteCands++
	f.mu.Unlock()
	f.check()
	return nil
}

func (f *fakePC) gather() {
	f.mu.Lock()
	cb := f.onCand
	f.mu.Unlock()
	if cb != nil {
		cb(json.RawMessage(fmt.Sprintf(`{"candidate":"candidate:%s"}`, f.name)))
	}
}

func (f *fakePC) check() {
	f.mu.Lock()
	ready := f.local && f.remote && f.remoteCands > 0 && !f.connected
	if ready {
		f.connected = true
	}
	cb := f.onState
	f.mu.Unlock()
	if ready && cb != nil {
		cb(core.TransportConnected)
	}
}

func (f *fakePC) fail() {
	f.mu.Lock()
	cb := f.onState
	f.mu.Unlock()
	cb(core.TransportFailed)
}

func (f *fakePC) OnICECandidate(fn func(core.Payload)) {
	f.mu.Lock()
	f.onCand = fn
	f.mu.Unlock()
}

func (f *fakePC) OnStateChange(fn func(core.TransportState)) {
	f.mu.Lock()
	f.onState = fn
	f.mu.Unlock()
}

func (f *fakePC) OnTrack(func(core.RemoteTrack))       {}
func (f *fakePC) OnDataChannel(func(core.DataChannel)) {}

func (f *fakePC) CreateDataChannel(label string) (core.DataChannel, error) {
	return nil, errors.New("not supported")
}

func (f *fakePC) AddLocalTrack(core.MediaKind, string) (core.LocalTrack, error) {
	return nil, errors.New("not supported")
}

func (f *fakePC) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakePC) stats() (offers, answers, closes, adds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers, f.answers, f.closes, f.addCalls
}
