package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/codec"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

const wsInboxSize = 256

// AckError is a request the hub refused.
type AckError struct {
	Name    string
	Message string
}

func (e *AckError) Error() string { return fmt.Sprintf("hub: %s: %s", e.Name, e.Message) }

// WSChannel is a client of the group hub websocket.
type WSChannel struct {
	url    string
	dialer *websocket.Dialer
	logger zerolog.Logger

	nextAck atomic.Uint64
	dropped atomic.Uint64

	mu        sync.Mutex
	conn      *websocket.Conn
	id        domain.Identity
	pending   map[uint64]chan error
	send      chan []byte
	connected chan struct{}
	closing   chan struct{}
	closed    bool

	msgs chan core.GroupMessage
}

var _ core.GroupChannel = (*WSChannel)(nil)

// NewWSChannel prepares a client for the access URL returned by the
// negotiate endpoint.
func NewWSChannel(access core.GroupAccess) *WSChannel {
	return &WSChannel{
		url:       access.URL,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:    log.With().Str("module", "group.ws").Str("hub", access.Hub).Logger(),
		pending:   make(map[uint64]chan error),
		send:      make(chan []byte, 32),
		connected: make(chan struct{}),
		closing:   make(chan struct{}),
		msgs:      make(chan core.GroupMessage, wsInboxSize),
	}
}

// Connect dials the hub and waits for it to assign a connection id.
func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.writePump(conn)
	go c.readPump(conn)

	select {
	case <-c.connected:
		c.logger.Info().Str("id", string(c.Identity())).Msg("connected to hub")
		return nil
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}
}

func (c *WSChannel) Identity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *WSChannel) Join(ctx context.Context, group domain.GroupName) error {
	return c.request(ctx, codec.HubRequest{Type: codec.HubJoinGroup, Group: string(group)})
}

func (c *WSChannel) Leave(ctx context.Context, group domain.GroupName) error {
	return c.request(ctx, codec.HubRequest{Type: codec.HubLeaveGroup, Group: string(group)})
}

func (c *WSChannel) Broadcast(ctx context.Context, group domain.GroupName, text []byte) error {
	return c.request(ctx, codec.HubRequest{
		Type:     codec.HubSendToGroup,
		Group:    string(group),
		DataType: codec.HubDataText,
		Data:     string(text),
	})
}

func (c *WSChannel) Messages() <-chan core.GroupMessage { return c.msgs }

// Dropped counts group messages discarded because Messages was full.
func (c *WSChannel) Dropped() uint64 { return c.dropped.Load() }

// request sends req and waits for its ack.
func (c *WSChannel) request(ctx context.Context, req codec.HubRequest) error {
	req.AckID = c.nextAck.Add(1)
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	ack := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn == nil || c.id == "" {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[req.AckID] = ack
	select {
	case c.send <- data:
	default:
		delete(c.pending, req.AckID)
		c.mu.Unlock()
		return ErrBackpressure
	}
	c.mu.Unlock()

	select {
	case err := <-ack:
		return err
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.AckID)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *WSChannel) writePump(conn *websocket.Conn) {
	for {
		select {
		case <-c.closing:
			return
		case data := <-c.send:
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				c.logger.Error().Err(err).Msg("writePump set deadline")
				_ = c.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				_ = c.Close()
				return
			}
		}
	}
}

func (c *WSChannel) readPump(conn *websocket.Conn) {
	defer func() {
		_ = c.Close()
		close(c.msgs)
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
			default:
				c.logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		var ev codec.HubEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("bad hub frame")
			continue
		}
		c.handleEvent(ev)
	}
}

func (c *WSChannel) handleEvent(ev codec.HubEvent) {
	switch ev.Type {
	case codec.HubSystem:
		if ev.Event != codec.HubEventConnected {
			return
		}
		c.mu.Lock()
		first := c.id == ""
		c.id = domain.Identity(ev.ConnectionID)
		c.mu.Unlock()
		if first {
			close(c.connected)
		}
	case codec.HubAck:
		c.mu.Lock()
		ack, ok := c.pending[ev.AckID]
		delete(c.pending, ev.AckID)
		c.mu.Unlock()
		if !ok {
			return
		}
		if ev.Success {
			ack <- nil
			return
		}
		e := &AckError{Name: "Unknown"}
		if ev.Error != nil {
			e.Name, e.Message = ev.Error.Name, ev.Error.Message
		}
		ack <- e
	case codec.HubMessage:
		msg := core.GroupMessage{
			Group: domain.GroupName(ev.Group),
			From:  domain.Identity(ev.FromConnectionID),
			Data:  []byte(ev.Data),
		}
		// acks share this goroutine, so a slow reader must not stall it
		select {
		case c.msgs <- msg:
		default:
			n := c.dropped.Add(1)
			c.logger.Warn().Str("group", ev.Group).Uint64("dropped", n).Msg("inbox full, message dropped")
		}
	}
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closing)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		close(c.msgs)
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
