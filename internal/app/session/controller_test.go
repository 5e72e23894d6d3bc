package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceCaptions/internal/adapters/group"
	"github.com/dkeye/VoiceCaptions/internal/app/captions"
	"github.com/dkeye/VoiceCaptions/internal/core"
	"github.com/dkeye/VoiceCaptions/internal/domain"
)

type rig struct {
	ctl   *Controller
	creds *fakeCreds
	media *fakeMedia
	recog *fakeRecognizer
	opens int
}

func newRig(hub *group.MemoryHub, link *pcLink) *rig {
	r := &rig{creds: &fakeCreds{}, media: newFakeMedia(), recog: newFakeRecognizer()}
	r.ctl = NewController(Config{
		Group:     "call",
		Languages: captions.LanguagePair{Primary: "ja-JP", Secondary: "zh-Hans"},
	}, Deps{
		Credentials: r.creds,
		OpenMedia: func(context.Context) (core.MediaSource, error) {
			r.opens++
			return r.media, nil
		},
		NewPeerConnection: link.factory(),
		NewChannel: func(core.GroupAccess) (core.GroupChannel, error) {
			return hub.Channel(""), nil
		},
		NewRecognizer: func(core.SpeechToken, core.RecognitionConfig) core.RecognitionSource {
			return r.recog
		},
	})
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("session never released")
	}
}

func TestStartStopReleasesOnce(t *testing.T) {
	link := &pcLink{}
	r := newRig(group.NewMemoryHub(), link)

	if err := r.ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.ctl.Started() {
		t.Fatal("not started")
	}
	if err := r.ctl.Start(context.Background()); err != nil || r.opens != 1 {
		t.Fatalf("second Start: err=%v opens=%d", err, r.opens)
	}

	done := r.ctl.Done()
	r.ctl.Stop()
	r.ctl.Stop()
	waitDone(t, done)

	if r.ctl.Started() {
		t.Error("still started")
	}
	if r.media.closeCount() != 1 || r.recog.stopCount() != 1 {
		t.Errorf("media closes=%d recognizer stops=%d", r.media.closeCount(), r.recog.stopCount())
	}
	if pc := link.pcs[0]; !pc.isClosed() || pc.closeCount() != 1 {
		t.Errorf("peer connection closes=%d", pc.closeCount())
	}
}

func TestStopBeforeStart(t *testing.T) {
	r := newRig(group.NewMemoryHub(), &pcLink{})
	r.ctl.Stop()
	if r.ctl.Started() {
		t.Error("started")
	}
	waitDone(t, r.ctl.Done())
	if r.ctl.State() != domain.StateIdle {
		t.Errorf("state = %v", r.ctl.State())
	}
}

func TestCredentialFailureAllocatesNothing(t *testing.T) {
	link := &pcLink{}
	r := newRig(group.NewMemoryHub(), link)
	boom := errors.New("negotiate: 500")
	r.creds.err = boom

	err := r.ctl.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if r.opens != 0 || len(link.pcs) != 0 {
		t.Errorf("allocated: media=%d pcs=%d", r.opens, len(link.pcs))
	}
	if r.ctl.Started() {
		t.Error("started after failure")
	}
}

func TestPeerConnectionFailureReleasesMedia(t *testing.T) {
	link := &pcLink{fail: errors.New("no ice")}
	r := newRig(group.NewMemoryHub(), link)
	if err := r.ctl.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded")
	}
	if r.media.closeCount() != 1 {
		t.Errorf("media closes = %d", r.media.closeCount())
	}
	if r.ctl.Started() {
		t.Error("started after failure")
	}
}

func TestRecognitionEndStopsCall(t *testing.T) {
	for _, kind := range []core.RecognitionKind{core.RecognitionCanceled, core.RecognitionSessionStopped} {
		t.Run(kind.String(), func(t *testing.T) {
			r := newRig(group.NewMemoryHub(), &pcLink{})
			if err := r.ctl.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			done := r.ctl.Done()
			r.recog.emit(core.RecognitionEvent{Kind: core.RecognitionInterim, Text: "こん"})
			if _, ok := r.ctl.History().Partial(); !ok {
				t.Fatal("partial not set")
			}

			r.recog.emit(core.RecognitionEvent{Kind: kind, Reason: "quota"})
			waitDone(t, done)
			if r.ctl.Started() {
				t.Error("still started")
			}
			if _, ok := r.ctl.History().Partial(); ok {
				t.Error("partial survived stop")
			}
		})
	}
}

func TestCaptionsReachPeer(t *testing.T) {
	hub := group.NewMemoryHub()
	link := &pcLink{}
	a, b := newRig(hub, link), newRig(hub, link)
	ctx := context.Background()
	if err := a.ctl.Start(ctx); err != nil {
		t.Fatalf("a.Start: %v", err)
	}
	if err := b.ctl.Start(ctx); err != nil {
		t.Fatalf("b.Start: %v", err)
	}
	defer a.ctl.Stop()
	defer b.ctl.Stop()

	waitFor(t, "both connected", func() bool {
		return a.ctl.State() == domain.StateConnected && b.ctl.State() == domain.StateConnected
	})

	a.recog.emit(core.RecognitionEvent{
		Kind:         core.RecognitionFinal,
		Text:         "こんにちは",
		Language:     "ja-JP",
		Translations: map[string]string{"zh-Hans": "你好"},
	})

	self := a.ctl.History().Snapshot()
	if len(self) != 1 || self[0].Origin != domain.OriginSelf || self[0].TranslatedText != "你好" {
		t.Fatalf("self history = %+v", self)
	}
	waitFor(t, "peer caption", func() bool { return b.ctl.History().Len() == 1 })
	peer := b.ctl.History().Snapshot()[0]
	if peer.Origin != domain.OriginPeer || peer.OriginalText != "こんにちは" ||
		peer.TranslatedText != "你好" || peer.SourceLanguage != "ja-JP" {
		t.Errorf("peer record = %+v", peer)
	}
	if peer.Timestamp.UnixMilli() != self[0].Timestamp.UnixMilli() {
		t.Errorf("timestamp %v != %v", peer.Timestamp, self[0].Timestamp)
	}
}

func TestHistoryRecreatedOnRestart(t *testing.T) {
	r := newRig(group.NewMemoryHub(), &pcLink{})
	if err := r.ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := r.ctl.History()
	r.recog.emit(core.RecognitionEvent{Kind: core.RecognitionFinal, Text: "hi", Language: "en-US"})
	r.ctl.Stop()
	if first.Len() != 1 {
		t.Fatalf("history after stop len = %d", first.Len())
	}
	changes, cancel := first.Subscribe()
	defer cancel()

	r.recog = newFakeRecognizer()
	if err := r.ctl.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer r.ctl.Stop()
	if r.ctl.History() == first || r.ctl.History().Len() != 0 {
		t.Error("history not recreated")
	}
	if first.Len() != 0 {
		t.Errorf("previous history len = %d after restart, want 0", first.Len())
	}
	select {
	case ch := <-changes:
		if ch.Kind != captions.ChangeReset {
			t.Errorf("change kind = %v, want reset", ch.Kind)
		}
	case <-time.After(time.Second):
		t.Error("no reset published to previous history")
	}
}
