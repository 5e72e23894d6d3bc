package group

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("group channel not connected")
	ErrClosed       = errors.New("group channel closed")
	ErrNotJoined    = errors.New("not a member of group")
)

const memoryBuffer = 256

// MemoryHub is an in-process broadcast group service. Every member of a
// group receives every broadcast, the sender included.
type MemoryHub struct {
	mu     sync.Mutex
	groups map[domain.GroupName]map[*MemoryChannel]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{groups: make(map[domain.GroupName]map[*MemoryChannel]struct{})}
}

// Channel returns a client of the hub. An empty id gets a random one on
// Connect.
func (h *MemoryHub) Channel(id domain.Identity) *MemoryChannel {
	return &MemoryChannel{
		hub:    h,
		wantID: id,
		msgs:   make(chan core.GroupMessage, memoryBuffer),
		groups: make(map[domain.GroupName]struct{}),
	}
}

func (h *MemoryHub) join(g domain.GroupName, c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[g]
	if !ok {
		members = make(map[*MemoryChannel]struct{})
		h.groups[g] = members
	}
	members[c] = struct{}{}
}

func (h *MemoryHub) leave(g domain.GroupName, c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.groups[g]
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, g)
	}
}

func (h *MemoryHub) publish(msg core.GroupMessage) {
	h.mu.Lock()
	targets := make([]*MemoryChannel, 0, len(h.groups[msg.Group]))
	for c := range h.groups[msg.Group] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.deliver(msg)
	}
}

// Members reports how many channels have joined g.
func (h *MemoryHub) Members(g domain.GroupName) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[g])
}

type MemoryChannel struct {
	hub    *MemoryHub
	wantID domain.Identity

	mu        sync.Mutex
	id        domain.Identity
	connected bool
	closed    bool
	groups    map[domain.GroupName]struct{}
	msgs      chan core.GroupMessage
}

var _ core.GroupChannel = (*MemoryChannel)(nil)

func (c *MemoryChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.connected {
		return nil
	}
	c.id = c.wantID
	if c.id == "" {
		c.id = domain.Identity(uuid.NewString())
	}
	c.connected = true
	return nil
}

func (c *MemoryChannel) Identity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *MemoryChannel) Join(ctx context.Context, g domain.GroupName) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.groups[g] = struct{}{}
	c.mu.Unlock()
	c.hub.join(g, c)
	return nil
}

func (c *MemoryChannel) Leave(ctx context.Context, g domain.GroupName) error {
	c.mu.Lock()
	if _, ok := c.groups[g]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.groups, g)
	c.mu.Unlock()
	c.hub.leave(g, c)
	return nil
}

func (c *MemoryChannel) Broadcast(ctx context.Context, g domain.GroupName, text []byte) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if _, ok := c.groups[g]; !ok {
		c.mu.Unlock()
		return ErrNotJoined
	}
	from := c.id
	c.mu.Unlock()

	data := make([]byte, len(text))
	copy(data, text)
	c.hub.publish(core.GroupMessage{Group: g, From: from, Data: data})
	return nil
}

func (c *MemoryChannel) Messages() <-chan core.GroupMessage { return c.msgs }

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	groups := make([]domain.GroupName, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	c.groups = map[domain.GroupName]struct{}{}
	close(c.msgs)
	c.mu.Unlock()

	for _, g := range groups {
		c.hub.leave(g, c)
	}
	return nil
}

func (c *MemoryChannel) usableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if !c.connected {
		return ErrNotConnected
	}
	return nil
}

func (c *MemoryChannel) deliver(msg core.GroupMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.msgs <- msg:
	default:
		log.Warn().Str("module", "group.memory").Str("id", string(c.id)).Msg("inbox full, message dropped")
	}
}
