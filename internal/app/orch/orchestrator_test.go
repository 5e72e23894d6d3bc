package orch

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/VoiceCaptions/internal/app"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
)

type queueConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (c *queueConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *queueConn) Close() {}

func (c *queueConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newOrch() *Orchestrator {
	return New(app.NewRegistry(), app.NewGroupManager(), app.SimplePolicy{})
}

func bind(o *Orchestrator, sid string, conn core.SignalConnection, cancel func()) {
	user := o.Registry.GetOrCreateUser(domain.UserID("u-"+sid), "")
	meta := domain.NewMember(user, domain.Identity(sid))
	o.Registry.Bind(core.SessionID(sid), core.NewMemberSession(meta, conn), cancel)
}

func TestSendToGroupIncludesSender(t *testing.T) {
	o := newOrch()
	a, b := &queueConn{}, &queueConn{}
	bind(o, "a", a, nil)
	bind(o, "b", b, nil)
	for _, sid := range []core.SessionID{"a", "b"} {
		if err := o.JoinGroup(sid, "room"); err != nil {
			t.Fatalf("JoinGroup(%s): %v", sid, err)
		}
	}
	if err := o.JoinGroup("a", "room"); err != nil {
		t.Fatalf("second JoinGroup: %v", err)
	}

	res, err := o.SendToGroup("a", "room", core.Frame("hi"))
	if err != nil {
		t.Fatalf("SendToGroup: %v", err)
	}
	if res.SendTo != 2 || a.count() != 1 || b.count() != 1 {
		t.Errorf("sent=%d a=%d b=%d", res.SendTo, a.count(), b.count())
	}
}

func TestSendToGroupRequiresMembership(t *testing.T) {
	o := newOrch()
	bind(o, "a", &queueConn{}, nil)
	if _, err := o.SendToGroup("a", "room", core.Frame("x")); !errors.Is(err, ErrNotInGroup) {
		t.Errorf("err = %v", err)
	}
	if err := o.JoinGroup("ghost", "room"); !errors.Is(err, ErrUnknownConn) {
		t.Errorf("unknown conn err = %v", err)
	}
	if err := o.JoinGroup("a", ""); !errors.Is(err, ErrInvalidGroup) {
		t.Errorf("empty group err = %v", err)
	}
}

func TestLeaveAndDisconnect(t *testing.T) {
	o := newOrch()
	bind(o, "a", &queueConn{}, nil)
	_ = o.JoinGroup("a", "one")
	_ = o.JoinGroup("a", "two")

	if err := o.LeaveGroup("a", "one"); err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}
	if err := o.LeaveGroup("a", "one"); err != nil {
		t.Fatalf("second LeaveGroup: %v", err)
	}
	g, _ := o.Groups.Get("one")
	if g.HasMember("a") {
		t.Error("still in group one")
	}

	o.Disconnect("a")
	g, _ = o.Groups.Get("two")
	if g.HasMember("a") {
		t.Error("still in group two after disconnect")
	}
	if o.Registry.Count() != 0 {
		t.Error("registry not empty")
	}
}

func TestSlowMemberIsKicked(t *testing.T) {
	o := newOrch()
	kicked := false
	bind(o, "a", &queueConn{}, nil)
	bind(o, "slow", &queueConn{full: true}, func() { kicked = true })
	_ = o.JoinGroup("a", "room")
	_ = o.JoinGroup("slow", "room")

	res, err := o.SendToGroup("a", "room", core.Frame("x"))
	if err != nil {
		t.Fatalf("SendToGroup: %v", err)
	}
	if len(res.Dropped) != 1 || !kicked {
		t.Errorf("dropped=%d kicked=%v", len(res.Dropped), kicked)
	}
}

func TestEvictGroup(t *testing.T) {
	o := newOrch()
	bind(o, "a", &queueConn{}, nil)
	_ = o.JoinGroup("a", "room")
	o.EvictGroup("room")
	if _, ok := o.Groups.Get("room"); ok {
		t.Error("group still listed")
	}
	if o.Registry.InGroup("a", "room") {
		t.Error("registry still has membership")
	}
}
