package hostlink

import (
	"sort"
	"time"
)

// Host-side timeouts used by the monitor.
const (
	DefaultReceiverTimeout = 20 * time.Second
	DefaultSenderTimeout   = 180 * time.Second

	// MotionOperating is the motion value that marks a simulator in use.
	MotionOperating = 2
)

// SenderView is the host's picture of one sender.
type SenderView struct {
	ID          uint8
	Online      bool
	Motion      uint16
	Ramp        uint16
	Seq         uint16
	LastUpdate  time.Time
	MotionSince time.Time // zero unless operating
}

// MotionSession is one completed operating period.
type MotionSession struct {
	SenderID uint8
	Start    time.Time
	End      time.Time
}

func (m MotionSession) Duration() time.Duration { return m.End.Sub(m.Start) }

// Board folds host events into per-sender state. It is not safe for
// concurrent use.
type Board struct {
	ReceiverTimeout time.Duration
	SenderTimeout   time.Duration
	Operating       uint16

	receiverOnline bool
	receiverSeen   time.Time
	senders        map[uint8]*SenderView
	sessions       []MotionSession
	malformed      int
}

func NewBoard() *Board {
	return &Board{
		ReceiverTimeout: DefaultReceiverTimeout,
		SenderTimeout:   DefaultSenderTimeout,
		Operating:       MotionOperating,
		senders:         make(map[uint8]*SenderView),
	}
}

// Activity marks the receiver alive; any received byte counts.
func (b *Board) Activity(now time.Time) {
	b.receiverOnline = true
	b.receiverSeen = now
}

// Apply records one parsed line seen at now.
func (b *Board) Apply(now time.Time, e Event) {
	b.Activity(now)
	switch e.Type {
	case TypeOnline:
		s := b.sender(e.SenderID)
		s.Online = e.Online
		s.LastUpdate = now
	case TypeState:
		s := b.sender(e.SenderID)
		s.Online = true
		s.Motion, s.Ramp, s.Seq = e.Motion, e.Ramp, e.Seq
		s.LastUpdate = now
		b.trackMotion(now, s)
	}
}

// Malformed counts an unparsable line; it still proves the receiver is alive.
func (b *Board) Malformed(now time.Time) {
	b.malformed++
	b.Activity(now)
}

func (b *Board) trackMotion(now time.Time, s *SenderView) {
	operating := s.Motion == b.Operating
	switch {
	case operating && s.MotionSince.IsZero():
		s.MotionSince = now
	case !operating && !s.MotionSince.IsZero():
		b.sessions = append(b.sessions, MotionSession{SenderID: s.ID, Start: s.MotionSince, End: now})
		s.MotionSince = time.Time{}
	}
}

// Expire applies the receiver and sender timeouts. It reports whether
// anything changed.
func (b *Board) Expire(now time.Time) bool {
	changed := false
	if b.receiverOnline && b.ReceiverTimeout > 0 && now.Sub(b.receiverSeen) > b.ReceiverTimeout {
		b.receiverOnline = false
		changed = true
	}
	for _, s := range b.senders {
		if s.Online && b.SenderTimeout > 0 && now.Sub(s.LastUpdate) > b.SenderTimeout {
			s.Online = false
			changed = true
		}
	}
	return changed
}

// Disconnected forces the receiver offline, e.g. after a serial error.
func (b *Board) Disconnected() { b.receiverOnline = false }

func (b *Board) ReceiverOnline() bool    { return b.receiverOnline }
func (b *Board) ReceiverSeen() time.Time { return b.receiverSeen }
func (b *Board) MalformedLines() int     { return b.malformed }

// Senders returns a copy of every sender sorted by id.
func (b *Board) Senders() []SenderView {
	out := make([]SenderView, 0, len(b.senders))
	for _, s := range b.senders {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sessions returns completed motion sessions in completion order.
func (b *Board) Sessions() []MotionSession {
	return append([]MotionSession(nil), b.sessions...)
}

// Restore seeds the board with previously persisted senders, all offline
// until they are heard from again.
func (b *Board) Restore(views []SenderView) {
	for _, v := range views {
		v.Online = false
		v.MotionSince = time.Time{}
		cp := v
		b.senders[v.ID] = &cp
	}
}

func (b *Board) sender(id uint8) *SenderView {
	s, ok := b.senders[id]
	if !ok {
		s = &SenderView{ID: id}
		b.senders[id] = s
	}
	return s
}
