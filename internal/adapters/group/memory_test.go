package group

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/core"
)

func recv(t *testing.T, ch <-chan core.GroupMessage) core.GroupMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("messages channel closed")
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return core.GroupMessage{}
}

func TestMemoryBroadcastReachesSender(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	a, b := hub.Channel("a"), hub.Channel("b")
	for _, c := range []*MemoryChannel{a, b} {
		if err := c.Connect(ctx); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		if err := c.Join(ctx, "room"); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}

	if err := a.Broadcast(ctx, "room", []byte("hi")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	for _, c := range []*MemoryChannel{a, b} {
		m := recv(t, c.Messages())
		if string(m.Data) != "hi" || m.From != "a" || m.Group != "room" {
			t.Errorf("got %+v", m)
		}
	}
}

func TestMemoryChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	c := hub.Channel("")
	if err := c.Join(ctx, "room"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Join before Connect err = %v, want ErrNotConnected", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.Identity() == "" {
		t.Fatal("identity not assigned on Connect")
	}
	if err := c.Broadcast(ctx, "room", []byte("x")); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("Broadcast before Join err = %v, want ErrNotJoined", err)
	}
	_ = c.Join(ctx, "room")
	if hub.Members("room") != 1 {
		t.Fatalf("Members = %d, want 1", hub.Members("room"))
	}
	_ = c.Close()
	_ = c.Close()
	if hub.Members("room") != 0 {
		t.Errorf("Members after Close = %d, want 0", hub.Members("room"))
	}
	if _, ok := <-c.Messages(); ok {
		t.Error("messages channel still open after Close")
	}
}
