package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/app/orch"
	"github.com/dkeye/VoiceCaptions/internal/codec"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type HubConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// RateLimit is the number of requests a connection may make per RateWindow.
	RateLimit  int
	RateWindow time.Duration
	SendBuffer int
}

func (c HubConfig) withDefaults() HubConfig {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32768
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 50
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

// GroupWSController serves the group hub websocket protocol.
type GroupWSController struct {
	Orch    *orch.Orchestrator
	cfg     HubConfig
	limiter *RateLimiter
}

func NewGroupWSController(o *orch.Orchestrator, cfg HubConfig) *GroupWSController {
	cfg = cfg.withDefaults()
	return &GroupWSController{
		Orch:    o,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

type WsSignalConn struct {
	conn  *websocket.Conn
	send  chan core.Frame
	roles []string

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *WsSignalConn) hasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleGroup upgrades an authenticated request. The auth middleware
// must have stored "sub", "name" and "roles" on the gin context.
func (ctl *GroupWSController) HandleGroup(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.GetString("sub"))
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("uid", string(uid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &WsSignalConn{
		conn:  ws,
		send:  make(chan core.Frame, ctl.cfg.SendBuffer),
		roles: c.GetStringSlice("roles"),
	}

	user := ctl.Orch.Registry.GetOrCreateUser(uid, c.GetString("name"))
	meta := domain.NewMember(user, domain.Identity(sid))
	sess := core.NewMemberSession(meta, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(sid, sess, func() {
		cancel()
		conn.Close()
	})

	ctl.sendJSON(conn, codec.HubEvent{
		Type:         codec.HubSystem,
		Event:        codec.HubEventConnected,
		ConnectionID: string(sid),
		UserID:       string(uid),
	})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
