package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/codec"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyStarted = errors.New("negotiation already started")

const (
	eventBuffer         = 64
	releaseTimeout      = 3 * time.Second
	DefaultNegotiateTTL = 45 * time.Second
	DefaultSendTimeout  = 5 * time.Second
)

type Config struct {
	Group domain.GroupName
	// NegotiationTimeout only warns about a call that never connects.
	NegotiationTimeout time.Duration
	// SendTimeout bounds each signaling broadcast.
	SendTimeout time.Duration
}

// Engine runs the Transition state machine for one call. All transitions
// happen on a single loop goroutine, except Stop which may be called from
// anywhere.
type Engine struct {
	cfg     Config
	channel core.GroupChannel
	factory core.PeerConnectionFactory
	logger  zerolog.Logger

	mu        sync.Mutex
	sess      Session
	pc        core.PeerConnection
	observers []func(domain.ConnectionState)

	ctx         context.Context
	cancel      context.CancelFunc
	events      chan Event
	done        chan struct{}
	releaseOnce sync.Once
}

func NewEngine(cfg Config, channel core.GroupChannel, factory core.PeerConnectionFactory) *Engine {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiateTTL
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Engine{
		cfg:     cfg,
		channel: channel,
		factory: factory,
		logger:  log.With().Str("module", "negotiation").Str("group", string(cfg.Group)).Logger(),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// OnStateChange registers fn to be called after every connection state
// change. Register before Start.
func (e *Engine) OnStateChange(fn func(domain.ConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) State() domain.ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.State
}

func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// Done is closed once the session reaches Closed and its resources have
// been released.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Start creates the peer connection, joins the group and announces this
// side. Negotiation then proceeds in the background until Stop or a
// transport failure.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.sess.State != domain.StateIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Unlock()
	e.apply(Event{Kind: EventStart})

	pc, err := e.factory(ctx)
	if err != nil {
		e.Stop()
		return fmt.Errorf("create peer connection: %w", err)
	}
	e.mu.Lock()
	closed := e.sess.State == domain.StateClosed
	if !closed {
		e.pc = pc
	}
	e.mu.Unlock()
	if closed {
		_ = pc.Close()
		return nil
	}

	pc.OnICECandidate(func(c core.Payload) {
		e.post(Event{Kind: EventLocalCandidate, Payload: c})
	})
	pc.OnStateChange(func(s core.TransportState) {
		e.post(Event{Kind: EventTransport, Transport: s})
	})

	if err := e.channel.Connect(ctx); err != nil {
		return e.abort(fmt.Errorf("connect group channel: %w", err))
	}
	if err := e.channel.Join(ctx, e.cfg.Group); err != nil {
		return e.abort(fmt.Errorf("join group %s: %w", e.cfg.Group, err))
	}

	local := e.channel.Identity()
	e.logger.Info().Str("local", string(local)).Msg("joined group")
	go e.loop(Event{Kind: EventJoined, LocalID: local})
	return nil
}

// abort releases a partially started session. A failure caused by a
// concurrent Stop is not reported.
func (e *Engine) abort(err error) error {
	if e.closed() {
		return nil
	}
	e.Stop()
	return err
}

// Stop closes the session. It never waits for in-flight negotiation steps;
// those observe Closed when they resume and do nothing further.
func (e *Engine) Stop() {
	e.apply(Event{Kind: EventStop})
}

func (e *Engine) post(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) loop(first Event) {
	timeout := time.NewTimer(e.cfg.NegotiationTimeout)
	defer timeout.Stop()

	e.apply(first)
	msgs := e.channel.Messages()
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.events:
			e.apply(ev)
		case m, ok := <-msgs:
			if !ok {
				e.logger.Warn().Msg("group channel closed")
				msgs = nil
				continue
			}
			msg, err := codec.DecodeSignal(m.Data)
			if err != nil {
				e.logger.Warn().Err(err).Str("from", string(m.From)).Msg("dropping malformed signal")
				continue
			}
			e.apply(Event{Kind: EventSignal, Signal: msg})
		case <-timeout.C:
			if st := e.State(); st != domain.StateConnected && st != domain.StateClosed {
				e.logger.Warn().Str("state", st.String()).Dur("after", e.cfg.NegotiationTimeout).Msg("peer connection not established")
			}
		}
	}
}

// apply runs one transition under the lock and executes its actions.
func (e *Engine) apply(ev Event) {
	e.mu.Lock()
	prev := e.sess
	next, actions := Transition(prev, ev)
	e.sess = next
	observers := e.observers
	e.mu.Unlock()

	if next.State != prev.State {
		e.logger.Info().Str("from", prev.State.String()).Str("to", next.State.String()).Str("role", next.Role.String()).Msg("state change")
		for _, fn := range observers {
			fn(next.State)
		}
	}
	for _, a := range actions {
		e.execute(a, next)
	}
}

func (e *Engine) closed() bool {
	return e.State() == domain.StateClosed
}

func (e *Engine) execute(a Action, s Session) {
	if a.Kind == ActionRelease {
		e.release()
		return
	}
	if e.closed() {
		return
	}
	e.mu.Lock()
	pc := e.pc
	ctx := e.ctx
	e.mu.Unlock()
	if pc == nil {
		return
	}

	switch a.Kind {
	case ActionBroadcastJoin:
		e.send(codec.Join(s.LocalID))

	case ActionCreateOffer:
		offer, err := pc.CreateOffer(ctx)
		if e.closed() {
			return
		}
		if err != nil {
			e.logger.Error().Err(err).Msg("create offer failed")
			return
		}
		e.send(codec.Offer(s.LocalID, offer))

	case ActionAcceptOffer:
		answer, err := pc.AcceptOffer(ctx, a.Payload)
		if e.closed() {
			return
		}
		if err != nil {
			e.logger.Warn().Err(err).Str("peer", string(s.PeerID)).Msg("ignoring offer")
			return
		}
		e.send(codec.Answer(s.LocalID, answer))

	case ActionApplyAnswer:
		if err := pc.ApplyAnswer(ctx, a.Payload); err != nil && !e.closed() {
			e.logger.Warn().Err(err).Str("peer", string(s.PeerID)).Msg("ignoring answer")
		}

	case ActionAddCandidate:
		if err := pc.AddICECandidate(a.Payload); err != nil {
			e.logger.Debug().Err(err).Msg("add ice candidate failed")
		}

	case ActionBroadcastCandidate:
		e.send(codec.ICE(s.LocalID, a.Payload))
	}
}

func (e *Engine) send(msg codec.SignalMessage) {
	data, err := codec.EncodeSignal(msg)
	if err != nil {
		e.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("encode signal")
		return
	}
	e.mu.Lock()
	parent := e.ctx
	e.mu.Unlock()
	ctx, cancel := context.WithTimeout(parent, e.cfg.SendTimeout)
	defer cancel()
	if err := e.channel.Broadcast(ctx, e.cfg.Group, data); err != nil {
		e.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("broadcast failed")
	}
}

func (e *Engine) release() {
	e.releaseOnce.Do(func() {
		e.mu.Lock()
		pc := e.pc
		e.pc = nil
		cancel := e.cancel
		e.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		close(e.done)

		if pc != nil {
			if err := pc.Close(); err != nil {
				e.logger.Warn().Err(err).Msg("close peer connection")
			}
		}
		ctx, cancelLeave := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancelLeave()
		if err := e.channel.Leave(ctx, e.cfg.Group); err != nil {
			e.logger.Debug().Err(err).Msg("leave group")
		}
		if err := e.channel.Close(); err != nil {
			e.logger.Debug().Err(err).Msg("close group channel")
		}
		e.logger.Info().Msg("session released")
	})
}
