package session

import (
	"sync"

	"github.com/rs/zerolog"
)

type closer struct {
	name string
	fn   func() error
}

// call holds the releasable resources of one session in allocation order.
type call struct {
	logger zerolog.Logger

	mu       sync.Mutex
	released bool
	closers  []closer
	done     chan struct{}
}

func newCall(logger zerolog.Logger) *call {
	return &call{logger: logger, done: make(chan struct{})}
}

// track registers fn for release. On an already released call fn runs at
// once and track reports false.
func (cl *call) track(name string, fn func() error) bool {
	cl.mu.Lock()
	if cl.released {
		cl.mu.Unlock()
		cl.run(closer{name: name, fn: fn})
		return false
	}
	cl.closers = append(cl.closers, closer{name: name, fn: fn})
	cl.mu.Unlock()
	return true
}

func (cl *call) isReleased() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.released
}

// release runs every closer once, newest first. Only the first call
// returns true.
func (cl *call) release() bool {
	cl.mu.Lock()
	if cl.released {
		cl.mu.Unlock()
		return false
	}
	cl.released = true
	closers := cl.closers
	cl.closers = nil
	cl.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		cl.run(closers[i])
	}
	close(cl.done)
	return true
}

func (cl *call) run(c closer) {
	defer func() {
		if r := recover(); r != nil {
			cl.logger.Error().Interface("panic", r).Str("resource", c.name).Msg("release panicked")
		}
	}()
	if err := c.fn(); err != nil {
		cl.logger.Warn().Err(err).Str("resource", c.name).Msg("release failed")
	}
}
