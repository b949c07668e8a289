// Package liveness tracks senders on the Receiver: sequence loss, state
// changes, and heartbeat timeouts verified with ping/pong.
package liveness

import (
	"errors"
	"sort"
	"time"

	"github.com/pion/logging"

	"meshlink/internal/clock"
	"meshlink/internal/hostlink"
	"meshlink/internal/identity"
	"meshlink/internal/packet"
)

// Defaults for Config.
const (
	DefaultHeartbeatTimeout = 90 * time.Second
	DefaultPingWait         = 800 * time.Millisecond
	DefaultPingRetries      = 2
)

// ErrNoRoute is returned by a Prober that has no physical address for a sender.
var ErrNoRoute = errors.New("no route to sender")

// State is a sender's liveness state.
type State uint8

const (
	Online State = iota + 1
	Verifying
	Offline
)

func (s State) String() string {
	switch s {
	case Online:
		return "online"
	case Verifying:
		return "verifying"
	case Offline:
		return "offline"
	}
	return "unknown"
}

// Record is what the Receiver knows about one sender. Records are never
// removed.
type Record struct {
	SenderID  uint8
	LastSeen  time.Time
	LastSeq   uint16
	Ramp      uint16
	Motion    uint16
	State     State
	MissedSeq uint32
	Received  uint64
	Pings     uint64
}

// Prober sends pings and waits for pongs on behalf of Sweep.
type Prober interface {
	// Ping sends one ping to the sender, or returns ErrNoRoute.
	Ping(sid uint8) error
	// AwaitPong waits up to wait for a pong from sid. Other packets that
	// arrive meanwhile must still be handed to Observe. It may return early
	// once any packet from sid was observed.
	AwaitPong(sid uint8, wait time.Duration) (packet.Telemetry, bool)
}

type Config struct {
	HeartbeatTimeout time.Duration
	PingWait         time.Duration
	PingRetries      int
}

func (c *Config) applyDefaults() {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.PingWait <= 0 {
		c.PingWait = DefaultPingWait
	}
	if c.PingRetries <= 0 {
		c.PingRetries = DefaultPingRetries
	}
}

// Monitor owns every SenderRecord. It is driven from the Receiver loop
// only and is not safe for concurrent use.
type Monitor struct {
	self  identity.VirtualAddress
	cfg   Config
	clock clock.Clock
	log   logging.LeveledLogger

	records map[uint8]*Record
}

// New builds a monitor for telemetry addressed to self.
func New(self identity.VirtualAddress, cfg Config, clk clock.Clock, log logging.LeveledLogger) *Monitor {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("liveness")
	}
	return &Monitor{self: self, cfg: cfg, clock: clk, log: log, records: make(map[uint8]*Record)}
}

func (m *Monitor) Config() Config { return m.cfg }

// Observe folds one telemetry packet into the sender's record and returns
// the host events it causes. Packets for other destinations are ignored.
func (m *Monitor) Observe(now time.Time, t packet.Telemetry) []hostlink.Event {
	if t.Dest != m.self {
		return nil
	}
	rec, ok := m.records[t.SenderID]
	if !ok {
		m.records[t.SenderID] = &Record{
			SenderID: t.SenderID,
			LastSeen: now,
			LastSeq:  t.Seq,
			Ramp:     t.Ramp,
			Motion:   t.Motion,
			State:    Online,
			Received: 1,
		}
		m.log.Infof("sender %d online (seq=%d)", t.SenderID, t.Seq)
		return []hostlink.Event{
			hostlink.Online(t.SenderID, true),
			hostlink.State(t.SenderID, t.Motion, t.Ramp, t.Seq),
		}
	}

	var events []hostlink.Event
	rec.Received++
	m.account(rec, t.Seq)
	rec.LastSeen = now
	switch rec.State {
	case Offline:
		m.log.Infof("sender %d back online", t.SenderID)
		events = append(events, hostlink.Online(t.SenderID, true))
	case Verifying:
		m.log.Debugf("sender %d answered while verifying (%s)", t.SenderID, t.Kind)
	}
	rec.State = Online

	changed := rec.Ramp != t.Ramp || rec.Motion != t.Motion
	rec.Ramp, rec.Motion = t.Ramp, t.Motion
	if changed || t.Kind == packet.KindData {
		events = append(events, hostlink.State(t.SenderID, t.Motion, t.Ramp, t.Seq))
	}
	return events
}

func (m *Monitor) account(rec *Record, seq uint16) {
	if gap := packet.SeqGap(rec.LastSeq, seq); gap > 1 {
		rec.MissedSeq += uint32(gap - 1)
	}
	rec.LastSeq = seq
}

// Sweep verifies every Online sender silent for longer than the heartbeat
// timeout. It blocks for at most PingRetries*PingWait per silent sender.
func (m *Monitor) Sweep(now time.Time, p Prober) []hostlink.Event {
	var events []hostlink.Event
	for _, sid := range m.ids() {
		rec := m.records[sid]
		if rec.State != Online || now.Sub(rec.LastSeen) <= m.cfg.HeartbeatTimeout {
			continue
		}
		rec.State = Verifying
		m.log.Debugf("sender %d silent for %s, verifying", sid, now.Sub(rec.LastSeen))
		events = append(events, m.verify(rec, p)...)
	}
	return events
}

func (m *Monitor) verify(rec *Record, p Prober) []hostlink.Event {
	sid := rec.SenderID
	for attempt := 0; attempt < m.cfg.PingRetries; attempt++ {
		if err := p.Ping(sid); err != nil {
			if errors.Is(err, ErrNoRoute) {
				m.log.Infof("sender %d offline: %v", sid, err)
				return m.offline(rec)
			}
			m.log.Warnf("ping sender %d: %v", sid, err)
		} else {
			rec.Pings++
		}

		pong, ok := p.AwaitPong(sid, m.cfg.PingWait)
		if rec.State != Verifying {
			// Some other packet from the sender arrived during the wait.
			return nil
		}
		if !ok {
			continue
		}
		rec.State = Online
		rec.LastSeen = m.clock.Now()
		rec.Received++
		m.account(rec, pong.Seq)
		changed := rec.Ramp != pong.Ramp || rec.Motion != pong.Motion
		rec.Ramp, rec.Motion = pong.Ramp, pong.Motion
		m.log.Debugf("sender %d confirmed by pong (attempt %d)", sid, attempt+1)
		if changed {
			return []hostlink.Event{hostlink.State(sid, pong.Motion, pong.Ramp, pong.Seq)}
		}
		return nil
	}
	m.log.Infof("sender %d offline after %d pings", sid, m.cfg.PingRetries)
	return m.offline(rec)
}

func (m *Monitor) offline(rec *Record) []hostlink.Event {
	rec.State = Offline
	return []hostlink.Event{hostlink.Online(rec.SenderID, false)}
}

// Record returns a copy of one sender's record.
func (m *Monitor) Record(sid uint8) (Record, bool) {
	rec, ok := m.records[sid]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns copies of all records sorted by sender id.
func (m *Monitor) Records() []Record {
	out := make([]Record, 0, len(m.records))
	for _, sid := range m.ids() {
		out = append(out, *m.records[sid])
	}
	return out
}

func (m *Monitor) ids() []uint8 {
	ids := make([]uint8, 0, len(m.records))
	for sid := range m.records {
		ids = append(ids, sid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
