package group

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBroadcastReachesSender(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	a, b := NewRedisChannel(client, 0), NewRedisChannel(client, 0)
	for _, c := range []*RedisChannel{a, b} {
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if err := c.Join(ctx, "room"); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	if a.Identity() == b.Identity() {
		t.Fatal("channels share an identity")
	}

	members, err := a.Members(ctx, "room")
	if err != nil || len(members) != 2 {
		t.Fatalf("Members = %v, %v", members, err)
	}

	if err := a.Broadcast(ctx, "room", []byte(`{"type":"join"}`)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	for _, c := range []*RedisChannel{a, b} {
		m := recv(t, c.Messages())
		if string(m.Data) != `{"type":"join"}` || m.From != a.Identity() {
			t.Errorf("got %+v", m)
		}
	}

	_ = a.Close()
	_ = a.Close()
	members, _ = b.Members(ctx, "room")
	if len(members) != 1 {
		t.Errorf("Members after Close = %v, want only b", members)
	}
	if _, ok := <-a.Messages(); ok {
		t.Error("messages open after Close")
	}
	_ = b.Close()
}

func TestRedisBroadcastRequiresJoin(t *testing.T) {
	ctx := context.Background()
	c := NewRedisChannel(newTestRedis(t), 0)
	if err := c.Join(ctx, "room"); err != ErrNotConnected {
		t.Errorf("Join before Connect err = %v", err)
	}
	_ = c.Connect(ctx)
	if err := c.Broadcast(ctx, "room", nil); err != ErrNotJoined {
		t.Errorf("Broadcast before Join err = %v", err)
	}
	_ = c.Close()
}

func TestRedisPresenceExpiresAndOvercrowdedJoinSucceeds(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	var chans []*RedisChannel
	for i := 0; i < MaxCallMembers+1; i++ {
		c := NewRedisChannel(client, time.Second)
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if err := c.Join(ctx, "room"); err != nil {
			t.Fatalf("Join #%d: %v", i, err)
		}
		defer c.Close()
		chans = append(chans, c)
	}
	members, err := chans[0].Members(ctx, "room")
	if err != nil || len(members) != MaxCallMembers+1 {
		t.Fatalf("Members = %v, %v", members, err)
	}

	mr.FastForward(2 * time.Second)
	members, _ = chans[0].Members(ctx, "room")
	if len(members) != 0 {
		t.Errorf("Members after TTL = %v, want none", members)
	}
}
