package group

import (
	"context"
	"testing"
	"time"
)

func newTestP2P(t *testing.T) *P2PChannel {
	t.Helper()
	c := NewP2PChannel(P2PConfig{
		ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"},
		MdnsTag:     "voicecaptions-test-" + t.Name(),
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestP2PBroadcastReachesSender(t *testing.T) {
	ctx := context.Background()
	c := newTestP2P(t)
	if err := c.Join(ctx, "room"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := c.Broadcast(ctx, "room", []byte("hello")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	m := recv(t, c.Messages())
	if string(m.Data) != "hello" || m.From != c.Identity() {
		t.Errorf("got %+v", m)
	}
}

func TestP2PBroadcastBetweenHosts(t *testing.T) {
	ctx := context.Background()
	a, b := newTestP2P(t), newTestP2P(t)
	if err := b.ConnectPeer(ctx, *a.AddrInfo()); err != nil {
		t.Fatalf("ConnectPeer: %v", err)
	}
	for _, c := range []*P2PChannel{a, b} {
		if err := c.Join(ctx, "room"); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}

	// the mesh forms on the gossip heartbeat, so publish until b hears it
	deadline := time.After(15 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case m := <-b.Messages():
			if m.From == a.Identity() {
				if string(m.Data) != "ping" {
					t.Errorf("data = %q", m.Data)
				}
				return
			}
		case <-tick.C:
			_ = a.Broadcast(ctx, "room", []byte("ping"))
		case <-deadline:
			t.Fatal("b never received a's broadcast")
		}
	}
}

func TestP2PRequiresConnect(t *testing.T) {
	c := NewP2PChannel(P2PConfig{})
	if err := c.Join(context.Background(), "room"); err != ErrNotConnected {
		t.Errorf("Join err = %v", err)
	}
	if c.Identity() != "" {
		t.Error("identity before Connect")
	}
	_ = c.Close()
}
