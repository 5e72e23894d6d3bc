// Package captions turns recognition events into caption records and
// mirrors them between the two sides of a call.
package captions

import (
	"sync"

	"github.com/dkeye/VoiceCaptions/internal/domain"
	"github.com/dkeye/VoiceCaptions/internal/util"
)

const DefaultCapacity = 200

type ChangeKind int

const (
	ChangeRecord ChangeKind = iota
	ChangePartial
	ChangeReset
)

type Change struct {
	Kind    ChangeKind
	Record  domain.CaptionRecord
	Partial domain.PartialCaption
}

// History holds the finalized captions of one call, newest first, plus the
// single in-progress partial caption.
type History struct {
	records *util.RingBuffer[domain.CaptionRecord]

	mu         sync.Mutex
	partial    domain.PartialCaption
	hasPartial bool
	subs       map[chan Change]struct{}
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		records: util.NewRingBuffer[domain.CaptionRecord](capacity),
		subs:    make(map[chan Change]struct{}),
	}
}

// Add inserts rec as the newest record, evicting the oldest one when the
// history is full.
func (h *History) Add(rec domain.CaptionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records.Push(rec)
	h.publishLocked(Change{Kind: ChangeRecord, Record: rec})
}

func (h *History) Snapshot() []domain.CaptionRecord { return h.records.Newest() }

func (h *History) Len() int { return h.records.Len() }

func (h *History) Capacity() int { return h.records.Cap() }

func (h *History) Partial() (domain.PartialCaption, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.partial, h.hasPartial
}

func (h *History) SetPartial(p domain.PartialCaption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.partial, h.hasPartial = p, true
	h.publishLocked(Change{Kind: ChangePartial, Partial: p})
}

func (h *History) ClearPartial() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasPartial {
		return
	}
	h.partial, h.hasPartial = domain.PartialCaption{}, false
	h.publishLocked(Change{Kind: ChangePartial})
}

// Reset drops every record and the partial caption.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records.Reset()
	h.partial, h.hasPartial = domain.PartialCaption{}, false
	h.publishLocked(Change{Kind: ChangeReset})
}

// Subscribe streams changes to a display. Changes are dropped for a
// subscriber that falls behind.
func (h *History) Subscribe() (ch <-chan Change, cancel func()) {
	c := make(chan Change, 64)

	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()

	cancel = func() {
		h.mu.Lock()
		if _, ok := h.subs[c]; ok {
			delete(h.subs, c)
			close(c)
		}
		h.mu.Unlock()
	}
	return c, cancel
}

func (h *History) publishLocked(c Change) {
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
