// Package session owns one call: credentials, media, the peer connection,
// negotiation over the group channel, and captions from recognition.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/app/captions"
	"github.com/dkeye/VoiceCaptions/internal/app/negotiation"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrStopped is returned by Start when Stop or a recognition end raced it.
var ErrStopped = errors.New("session stopped during start")

type Config struct {
	Group              domain.GroupName
	NegotiationTimeout time.Duration
	CaptionCapacity    int
	Languages          captions.LanguagePair
	Recognition        core.RecognitionConfig
}

// Deps are the collaborators a call is assembled from.
type Deps struct {
	Credentials       core.CredentialProvider
	OpenMedia         func(ctx context.Context) (core.MediaSource, error)
	NewPeerConnection core.PeerConnectionFactory
	NewChannel        func(access core.GroupAccess) (core.GroupChannel, error)
	NewRecognizer     func(token core.SpeechToken, cfg core.RecognitionConfig) core.RecognitionSource
	// OnRemoteTrack is optional; it runs on its own goroutine per track.
	OnRemoteTrack func(ctx context.Context, track core.RemoteTrack)
}

type Controller struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	started  bool
	starting bool
	current  *call
	history  *captions.History
	engine   *negotiation.Engine
	done     chan struct{}
}

func NewController(cfg Config, deps Deps) *Controller {
	done := make(chan struct{})
	close(done)
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		logger:  log.With().Str("module", "session").Str("group", string(cfg.Group)).Logger(),
		history: captions.NewHistory(cfg.CaptionCapacity),
		done:    done,
	}
}

func (c *Controller) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// History is the caption history of the current or most recent call.
func (c *Controller) History() *captions.History {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history
}

// Done is closed when the current call has been released. It is already
// closed when no call is running.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// State reports the negotiation state of the current call.
func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	e := c.engine
	c.mu.Unlock()
	if e == nil {
		return domain.StateIdle
	}
	return e.State()
}

// Start brings a call up. Credentials are fetched before anything is
// allocated; on any later failure what was allocated is released. Start
// on a running session is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	c.mu.Unlock()

	err := c.start(ctx)

	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()
	return err
}

func (c *Controller) start(ctx context.Context) error {
	access, err := c.deps.Credentials.GroupAccess(ctx)
	if err != nil {
		return fmt.Errorf("fetch group access: %w", err)
	}
	token, err := c.deps.Credentials.SpeechToken(ctx)
	if err != nil {
		return fmt.Errorf("fetch speech token: %w", err)
	}

	history := captions.NewHistory(c.cfg.CaptionCapacity)
	pipeline := captions.NewPipeline(history, c.cfg.Languages)
	cl := newCall(c.logger)

	c.mu.Lock()
	prev := c.history
	c.current = cl
	c.history = history
	c.done = cl.done
	c.mu.Unlock()
	// displays still watching the previous call clear it
	prev.Reset()

	fail := func(err error) error {
		c.end(cl)
		return err
	}
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if !cl.track("context", func() error { cancel(); return nil }) {
		return ErrStopped
	}

	src, err := c.deps.OpenMedia(ctx)
	if err != nil {
		return fail(fmt.Errorf("acquire media: %w", err))
	}
	if !cl.track("media", src.Close) {
		return ErrStopped
	}

	pc, err := c.deps.NewPeerConnection(ctx)
	if err != nil {
		return fail(fmt.Errorf("create peer connection: %w", err))
	}
	if !cl.track("peer connection", pc.Close) {
		return ErrStopped
	}
	if err := src.Attach(ctx, pc); err != nil {
		return fail(fmt.Errorf("attach media: %w", err))
	}
	pc.OnTrack(func(t core.RemoteTrack) {
		c.logger.Info().Str("track", t.ID()).Str("kind", string(t.Kind())).Msg("remote track")
		if c.deps.OnRemoteTrack != nil {
			go c.deps.OnRemoteTrack(callCtx, t)
		}
	})
	dc, err := pc.CreateDataChannel(captions.ChannelLabel)
	if err != nil {
		return fail(fmt.Errorf("create data channel: %w", err))
	}
	pipeline.AttachSend(dc)
	pc.OnDataChannel(func(dc core.DataChannel) { pipeline.Bind(dc) })
	if !cl.track("data channel", func() error { pipeline.DetachSend(); return nil }) {
		return ErrStopped
	}

	channel, err := c.deps.NewChannel(access)
	if err != nil {
		return fail(fmt.Errorf("create group channel: %w", err))
	}
	if !cl.track("group channel", channel.Close) {
		return ErrStopped
	}
	engine := negotiation.NewEngine(negotiation.Config{
		Group:              c.cfg.Group,
		NegotiationTimeout: c.cfg.NegotiationTimeout,
	}, channel, func(context.Context) (core.PeerConnection, error) { return pc, nil })
	if !cl.track("negotiation", func() error { engine.Stop(); return nil }) {
		return ErrStopped
	}
	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()
	if err := engine.Start(ctx); err != nil {
		return fail(fmt.Errorf("start negotiation: %w", err))
	}
	go func() {
		select {
		case <-engine.Done():
			c.logger.Info().Msg("negotiation closed, ending call")
			c.end(cl)
		case <-cl.done:
		}
	}()

	recognizer := c.deps.NewRecognizer(token, c.cfg.Recognition)
	if !cl.track("recognition", recognizer.Stop) {
		return ErrStopped
	}
	onEvent := func(ev core.RecognitionEvent) {
		switch ev.Kind {
		case core.RecognitionCanceled, core.RecognitionSessionStopped:
			c.logger.Warn().Str("kind", ev.Kind.String()).Str("reason", ev.Reason).Msg("recognition ended, stopping call")
			go c.end(cl)
		default:
			pipeline.HandleRecognition(ev)
		}
	}
	if err := recognizer.Start(ctx, src.AudioTap(), onEvent); err != nil {
		return fail(fmt.Errorf("start recognition: %w", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl.isReleased() || c.current != cl {
		return ErrStopped
	}
	c.started = true
	c.logger.Info().Msg("call started")
	return nil
}

// Stop ends the current call. It is safe to call at any time, from any
// goroutine, any number of times.
func (c *Controller) Stop() {
	c.mu.Lock()
	cl := c.current
	c.mu.Unlock()
	if cl != nil {
		c.end(cl)
	}
}

func (c *Controller) end(cl *call) {
	c.mu.Lock()
	if c.current == cl {
		c.current = nil
		c.started = false
		c.engine = nil
	}
	history := c.history
	c.mu.Unlock()

	if cl.release() {
		history.ClearPartial()
		c.logger.Info().Msg("call stopped")
	}
}
