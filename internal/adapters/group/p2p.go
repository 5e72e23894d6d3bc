package group

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	// dial failures and backoff errors go to stderr by default
	_ = logging.SetLogLevel("swarm2", "error")
	_ = logging.SetLogLevel("mdns", "error")
}

const (
	DefaultMdnsTag     = "voicecaptions-mdns"
	defaultConnectWait = 5 * time.Second
)

type P2PConfig struct {
	ListenAddrs []string `mapstructure:"listen_addrs"`
	MdnsTag     string   `mapstructure:"mdns_tag"`
	// Peers are multiaddrs with a /p2p/ component dialed on Connect.
	Peers []string `mapstructure:"peers"`
	// TopicPrefix namespaces group topics.
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type mdnsNotifee struct {
	h host.Host
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.h.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectWait)
	defer cancel()
	_ = n.h.Connect(ctx, pi)
}

type p2pGroup struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	cancel context.CancelFunc
}

// P2PChannel is a group channel on GossipSub with peers found via mDNS.
// GossipSub hands locally published messages to local subscribers, so a
// broadcast reaches the sender as well.
type P2PChannel struct {
	cfg    P2PConfig
	logger zerolog.Logger

	mu     sync.Mutex
	h      host.Host
	md     mdns.Service
	ps     *pubsub.PubSub
	groups map[domain.GroupName]*p2pGroup
	closed bool
	wg     sync.WaitGroup

	msgs chan core.GroupMessage
	done chan struct{}
}

var _ core.GroupChannel = (*P2PChannel)(nil)

func NewP2PChannel(cfg P2PConfig) *P2PChannel {
	if len(cfg.ListenAddrs) == 0 {
		cfg.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}
	if cfg.MdnsTag == "" {
		cfg.MdnsTag = DefaultMdnsTag
	}
	return &P2PChannel{
		cfg:    cfg,
		logger: log.With().Str("module", "group.p2p").Logger(),
		groups: make(map[domain.GroupName]*p2pGroup),
		msgs:   make(chan core.GroupMessage, 64),
		done:   make(chan struct{}),
	}
}

func (c *P2PChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.h != nil {
		return nil
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(c.cfg.ListenAddrs...))
	if err != nil {
		return fmt.Errorf("libp2p host: %w", err)
	}

	md := mdns.NewMdnsService(h, c.cfg.MdnsTag, &mdnsNotifee{h: h})
	if err := md.Start(); err != nil {
		_ = h.Close()
		return fmt.Errorf("mdns: %w", err)
	}

	ps, err := pubsub.NewGossipSub(context.Background(), h)
	if err != nil {
		_ = md.Close()
		_ = h.Close()
		return fmt.Errorf("gossipsub: %w", err)
	}

	for _, s := range c.cfg.Peers {
		pi, err := parsePeer(s)
		if err != nil {
			c.logger.Warn().Err(err).Str("peer", s).Msg("skip peer")
			continue
		}
		if err := h.Connect(ctx, *pi); err != nil {
			c.logger.Warn().Err(err).Str("peer", pi.ID.String()).Msg("dial failed")
		}
	}

	c.h, c.md, c.ps = h, md, ps
	c.logger.Info().Str("peer_id", h.ID().String()).Msg("p2p host up")
	return nil
}

func parsePeer(s string) (*peer.AddrInfo, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, err
	}
	return peer.AddrInfoFromP2pAddr(addr)
}

func (c *P2PChannel) Identity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.h == nil {
		return ""
	}
	return domain.Identity(c.h.ID().String())
}

// AddrInfo reports the host's dialable address, or nil before Connect.
func (c *P2PChannel) AddrInfo() *peer.AddrInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.h == nil {
		return nil
	}
	return &peer.AddrInfo{ID: c.h.ID(), Addrs: c.h.Addrs()}
}

// ConnectPeer dials pi directly.
func (c *P2PChannel) ConnectPeer(ctx context.Context, pi peer.AddrInfo) error {
	c.mu.Lock()
	h := c.h
	c.mu.Unlock()
	if h == nil {
		return ErrNotConnected
	}
	return h.Connect(ctx, pi)
}

func (c *P2PChannel) topicName(g domain.GroupName) string {
	return c.cfg.TopicPrefix + "group/" + string(g)
}

func (c *P2PChannel) Join(ctx context.Context, g domain.GroupName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.ps == nil {
		return ErrNotConnected
	}
	if _, ok := c.groups[g]; ok {
		return nil
	}

	topic, err := c.ps.Join(c.topicName(g))
	if err != nil {
		return fmt.Errorf("join topic %s: %w", g, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return fmt.Errorf("subscribe %s: %w", g, err)
	}

	fctx, cancel := context.WithCancel(context.Background())
	c.groups[g] = &p2pGroup{topic: topic, sub: sub, cancel: cancel}
	c.wg.Add(1)
	go c.forward(fctx, g, sub)
	return nil
}

func (c *P2PChannel) forward(ctx context.Context, g domain.GroupName, sub *pubsub.Subscription) {
	defer c.wg.Done()
	for {
		m, err := sub.Next(ctx)
		if err != nil {
			return
		}
		msg := core.GroupMessage{
			Group: g,
			From:  domain.Identity(m.GetFrom().String()),
			Data:  m.Data,
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *P2PChannel) Leave(ctx context.Context, g domain.GroupName) error {
	c.mu.Lock()
	grp, ok := c.groups[g]
	delete(c.groups, g)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	grp.close()
	return nil
}

func (g *p2pGroup) close() {
	g.cancel()
	g.sub.Cancel()
	_ = g.topic.Close()
}

func (c *P2PChannel) Broadcast(ctx context.Context, g domain.GroupName, text []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	grp, ok := c.groups[g]
	c.mu.Unlock()
	if !ok {
		return ErrNotJoined
	}
	return grp.topic.Publish(ctx, text)
}

func (c *P2PChannel) Messages() <-chan core.GroupMessage { return c.msgs }

func (c *P2PChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	groups := c.groups
	c.groups = map[domain.GroupName]*p2pGroup{}
	h, md := c.h, c.md
	close(c.done)
	c.mu.Unlock()

	for _, g := range groups {
		g.close()
	}
	c.wg.Wait()
	close(c.msgs)

	var err error
	if md != nil {
		_ = md.Close()
	}
	if h != nil {
		err = h.Close()
	}
	return err
}
