package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/core"
)

type fakeCreds struct {
	err   error
	calls int
}

func (f *fakeCreds) GroupAccess(context.Context) (core.GroupAccess, error) {
	f.calls++
	if f.err != nil {
		return core.GroupAccess{}, f.err
	}
	return core.GroupAccess{URL: "mem://hub", Hub: "signal"}, nil
}

func (f *fakeCreds) SpeechToken(context.Context) (core.SpeechToken, error) {
	if f.err != nil {
		return core.SpeechToken{}, f.err
	}
	return core.SpeechToken{Token: "t", Region: "japaneast"}, nil
}

type fakeMedia struct {
	mu     sync.Mutex
	tap    chan []byte
	closes int
}

func newFakeMedia() *fakeMedia { return &fakeMedia{tap: make(chan []byte)} }

func (m *fakeMedia) Attach(context.Context, core.PeerConnection) error { return nil }
func (m *fakeMedia) AudioTap() <-chan []byte                           { return m.tap }

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *fakeMedia) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type fakeRecognizer struct {
	mu      sync.Mutex
	onEvent func(core.RecognitionEvent)
	stops   int
	started chan struct{}
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{started: make(chan struct{})}
}

func (r *fakeRecognizer) Start(_ context.Context, _ <-chan []byte, onEvent func(core.RecognitionEvent)) error {
	r.mu.Lock()
	r.onEvent = onEvent
	r.mu.Unlock()
	close(r.started)
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRecognizer) emit(ev core.RecognitionEvent) {
	<-r.started
	r.mu.Lock()
	fn := r.onEvent
	r.mu.Unlock()
	fn(ev)
}

func (r *fakeRecognizer) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// fakeDC delivers SendText to its peer once open.
type fakeDC struct {
	label string

	mu    sync.Mutex
	open  bool
	onMsg func([]byte)
	peer  *fakeDC
}

func (d *fakeDC) Label() string { return d.label }

func (d *fakeDC) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *fakeDC) SendText(text string) error {
	d.mu.Lock()
	peer, open := d.peer, d.open
	d.mu.Unlock()
	if !open || peer == nil {
		return errors.New("data channel not open")
	}
	peer.mu.Lock()
	fn := peer.onMsg
	peer.mu.Unlock()
	if fn != nil {
		fn([]byte(text))
	}
	return nil
}

func (d *fakeDC) OnMessage(fn func([]byte)) {
	d.mu.Lock()
	d.onMsg = fn
	d.mu.Unlock()
}

func (d *fakeDC) Close() error {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	return nil
}

// fakePC connects to its partner when the offerer applies the answer.
type fakePC struct {
	link *pcLink

	mu      sync.Mutex
	closed  bool
	closes  int
	dcs     []*fakeDC
	onState func(core.TransportState)
	onDC    func(core.DataChannel)
	onCand  func(core.Payload)
}

type pcLink struct {
	mu   sync.Mutex
	pcs  []*fakePC
	fail error
}

func (l *pcLink) factory() core.PeerConnectionFactory {
	return func(context.Context) (core.PeerConnection, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.fail != nil {
			return nil, l.fail
		}
		pc := &fakePC{link: l}
		l.pcs = append(l.pcs, pc)
		return pc, nil
	}
}

func (l *pcLink) connect() {
	l.mu.Lock()
	pcs := append([]*fakePC(nil), l.pcs...)
	l.mu.Unlock()
	if len(pcs) != 2 {
		return
	}
	for i, pc := range pcs {
		other := pcs[1-i]
		pc.mu.Lock()
		locals := append([]*fakeDC(nil), pc.dcs...)
		pc.mu.Unlock()
		other.mu.Lock()
		onDC := other.onDC
		other.mu.Unlock()
		for _, local := range locals {
			remote := &fakeDC{label: local.label, open: true, peer: local}
			local.mu.Lock()
			local.peer, local.open = remote, true
			local.mu.Unlock()
			if onDC != nil {
				onDC(remote)
			}
		}
	}
	for _, pc := range pcs {
		pc.mu.Lock()
		fn := pc.onState
		pc.mu.Unlock()
		if fn != nil {
			fn(core.TransportConnected)
		}
	}
}

func (p *fakePC) CreateOffer(context.Context) (core.Payload, error) {
	return json.RawMessage(`{"type":"offer","sdp":"o"}`), nil
}

func (p *fakePC) AcceptOffer(context.Context, core.Payload) (core.Payload, error) {
	return json.RawMessage(`{"type":"answer","sdp":"a"}`), nil
}

func (p *fakePC) ApplyAnswer(context.Context, core.Payload) error {
	go p.link.connect()
	return nil
}

func (p *fakePC) AddICECandidate(core.Payload) error { return nil }

func (p *fakePC) OnICECandidate(fn func(core.Payload)) {
	p.mu.Lock()
	p.onCand = fn
	p.mu.Unlock()
}

func (p *fakePC) OnStateChange(fn func(core.TransportState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePC) OnTrack(func(core.RemoteTrack)) {}

func (p *fakePC) OnDataChannel(fn func(core.DataChannel)) {
	p.mu.Lock()
	p.onDC = fn
	p.mu.Unlock()
}

func (p *fakePC) CreateDataChannel(label string) (core.DataChannel, error) {
	dc := &fakeDC{label: label}
	p.mu.Lock()
	p.dcs = append(p.dcs, dc)
	p.mu.Unlock()
	return dc, nil
}

func (p *fakePC) AddLocalTrack(core.MediaKind, string) (core.LocalTrack, error) {
	return nil, errors.New("not supported")
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.closes++
	return nil
}

func (p *fakePC) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func (p *fakePC) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
