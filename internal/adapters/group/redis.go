package group

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// redisEnvelope carries the publisher identity next to the payload, since
// Redis Pub/Sub has no notion of a sender.
type redisEnvelope struct {
	From string `json:"from"`
	Data string `json:"data"`
}

func channelKey(g domain.GroupName) string  { return "group:" + string(g) }
func presenceKey(g domain.GroupName) string { return "group:" + string(g) + ":members" }

// MaxCallMembers is the size of one call. Larger groups still work but are
// reported on join.
const MaxCallMembers = 2

// RedisChannel is a group channel on Redis Pub/Sub. Redis delivers a
// publish to every subscriber, the publisher's own subscription included.
type RedisChannel struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	id     domain.Identity
	subs   map[domain.GroupName]*redis.PubSub
	closed bool
	wg     sync.WaitGroup

	msgs chan core.GroupMessage
	done chan struct{}
}

var _ core.GroupChannel = (*RedisChannel)(nil)

func NewRedisChannel(client *redis.Client, presenceTTL time.Duration) *RedisChannel {
	if presenceTTL <= 0 {
		presenceTTL = 24 * time.Hour
	}
	return &RedisChannel{
		client: client,
		ttl:    presenceTTL,
		logger: log.With().Str("module", "group.redis").Logger(),
		subs:   make(map[domain.GroupName]*redis.PubSub),
		msgs:   make(chan core.GroupMessage, 64),
		done:   make(chan struct{}),
	}
}

func (c *RedisChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.id != "" {
		return nil
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	c.id = domain.Identity(uuid.NewString())
	return nil
}

func (c *RedisChannel) Identity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *RedisChannel) Join(ctx context.Context, g domain.GroupName) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.id == "" {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := c.subs[g]; ok {
		c.mu.Unlock()
		return nil
	}
	id := c.id
	c.mu.Unlock()

	sub := c.client.Subscribe(ctx, channelKey(g))
	// Wait for the subscription so no broadcast sent after Join is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", g, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sub.Close()
		return ErrClosed
	}
	c.subs[g] = sub
	c.wg.Add(1)
	c.mu.Unlock()

	go c.forward(g, sub)

	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, presenceKey(g), string(id))
	pipe.Expire(ctx, presenceKey(g), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Str("group", string(g)).Msg("presence update failed")
		return nil
	}
	members, err := c.Members(ctx, g)
	if err != nil {
		c.logger.Warn().Err(err).Str("group", string(g)).Msg("presence read failed")
		return nil
	}
	ev := c.logger.Info()
	if len(members) > MaxCallMembers {
		ev = c.logger.Warn()
	}
	ev.Str("group", string(g)).Int("members", len(members)).Msg("joined group")
	return nil
}

func (c *RedisChannel) forward(g domain.GroupName, sub *redis.PubSub) {
	defer c.wg.Done()
	for m := range sub.Channel() {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
			c.logger.Warn().Err(err).Str("group", string(g)).Msg("bad envelope")
			continue
		}
		msg := core.GroupMessage{Group: g, From: domain.Identity(env.From), Data: []byte(env.Data)}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *RedisChannel) Leave(ctx context.Context, g domain.GroupName) error {
	c.mu.Lock()
	sub, ok := c.subs[g]
	delete(c.subs, g)
	id := c.id
	c.mu.Unlock()
	if !ok {
		return nil
	}
	_ = sub.Close()
	return c.client.SRem(ctx, presenceKey(g), string(id)).Err()
}

func (c *RedisChannel) Broadcast(ctx context.Context, g domain.GroupName, text []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.subs[g]; !ok {
		c.mu.Unlock()
		return ErrNotJoined
	}
	id := c.id
	c.mu.Unlock()

	payload, err := json.Marshal(redisEnvelope{From: string(id), Data: string(text)})
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, channelKey(g), payload).Err()
}

// Members lists the identities present in g.
// Members lists the identities present in g. Entries expire with the
// presence TTL.
func (c *RedisChannel) Members(ctx context.Context, g domain.GroupName) ([]domain.Identity, error) {
	ids, err := c.client.SMembers(ctx, presenceKey(g)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Identity, len(ids))
	for i, id := range ids {
		out[i] = domain.Identity(id)
	}
	return out, nil
}

func (c *RedisChannel) Messages() <-chan core.GroupMessage { return c.msgs }

// Close unsubscribes from every group. The Redis client stays open; it
// belongs to the caller.
func (c *RedisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = map[domain.GroupName]*redis.PubSub{}
	id := c.id
	close(c.done)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for g, sub := range subs {
		_ = sub.Close()
		_ = c.client.SRem(ctx, presenceKey(g), string(id)).Err()
	}
	c.wg.Wait()
	close(c.msgs)
	return nil
}
