package node

import (
	"context"
	"time"

	"github.com/pion/logging"

	"meshlink/internal/clock"
	"meshlink/internal/hostlink"
	"meshlink/internal/identity"
	"meshlink/internal/indicator"
	"meshlink/internal/liveness"
	"meshlink/internal/metrics"
	"meshlink/internal/packet"
	"meshlink/internal/peers"
	"meshlink/internal/radio"
)

// DefaultPollStep is how often the Receiver polls the radio while waiting
// for a pong.
const DefaultPollStep = 5 * time.Millisecond

// ReceiverOptions configures the Receiver's host output.
type ReceiverOptions struct {
	// EmitAlive prints R,1 at boot and every Timing.ReceiverAlive.
	EmitAlive bool
	// StatsPath, when set, receives one CSV row per sender every
	// StatsInterval.
	StatsPath     string
	StatsInterval time.Duration
	RunID         string
	TableSize     int
}

// Receiver tracks senders and reports them on the host link. It is the
// liveness.Prober for its own monitor.
type Receiver struct {
	env     Env
	self    identity.VirtualAddress
	log     logging.LeveledLogger
	monitor *liveness.Monitor
	table   *peers.Table

	senderPhys map[uint8]identity.PhysicalAddress

	aliveT    clock.Deadline
	identityT clock.Deadline
	statsT    clock.Deadline

	ctx     context.Context
	pending []hostlink.Event
	pongs   map[uint8]packet.Telemetry
}

var _ liveness.Prober = (*Receiver)(nil)

func NewReceiver(env Env) (*Receiver, error) {
	env.applyDefaults()
	size := env.Receive.TableSize
	if size <= 0 {
		size = peers.DefaultSize
	}
	table, err := peers.New(env.Receiver, size, env.Logs.NewLogger("peers"))
	if err != nil {
		return nil, err
	}
	self := env.Device.Virtual()
	t := env.Timing
	return &Receiver{
		env:  env,
		self: self,
		log:  env.Logs.NewLogger("receiver"),
		monitor: liveness.New(self, liveness.Config{
			HeartbeatTimeout: t.HeartbeatTimeout,
			PingWait:         t.PingWait,
			PingRetries:      t.PingRetries,
		}, env.Clock, env.Logs.NewLogger("liveness")),
		table:      table,
		senderPhys: make(map[uint8]identity.PhysicalAddress),
		aliveT:     clock.Deadline{Period: t.ReceiverAlive},
		identityT:  clock.Deadline{Period: t.IdentityInterval, Jitter: t.IdentityJitter},
		statsT:     clock.Deadline{Period: env.Receive.StatsInterval},
		ctx:        context.Background(),
		pongs:      make(map[uint8]packet.Telemetry),
	}, nil
}

func (r *Receiver) Interval() time.Duration { return r.env.Timing.ReceiverTick }

func (r *Receiver) Monitor() *liveness.Monitor { return r.monitor }
func (r *Receiver) Table() *peers.Table        { return r.table }

func (r *Receiver) Boot(ctx context.Context) ([]hostlink.Event, error) {
	clk := r.env.Clock
	if err := clk.Sleep(ctx, clock.Up(r.env.Jitter, r.env.Timing.BootJitter)); err != nil {
		return nil, err
	}
	if err := broadcastIdentity(r.env.Radio, r.self); err != nil {
		r.log.Warnf("boot identity: %v", err)
	}
	r.env.Indicator.Set(indicator.RoleColor(identity.RoleReceiver))

	now := clk.Now()
	r.aliveT.Start(now, nil, 0)
	r.identityT.Start(now, r.env.Jitter, r.env.Timing.IdentityFirstJitter)
	r.statsT.Start(now, nil, 0)
	r.log.Infof("receiver %s booted", r.self)
	if r.env.Receive.EmitAlive {
		return []hostlink.Event{hostlink.ReceiverAlive()}, nil
	}
	return nil, nil
}

// Tick drains the radio before running timers, so frames already received
// count as contact before the sweep looks for silent senders.
func (r *Receiver) Tick(ctx context.Context) []hostlink.Event {
	r.ctx = ctx
	r.drain()
	events := append([]hostlink.Event(nil), r.pending...)
	r.pending = r.pending[:0]

	now := r.env.Clock.Now()
	if r.env.Receive.EmitAlive && r.aliveT.Due(now, nil) {
		events = append(events, hostlink.ReceiverAlive())
	}
	if r.identityT.Due(now, r.env.Jitter) {
		if err := broadcastIdentity(r.env.Radio, r.self); err != nil {
			r.log.Debugf("identity: %v", err)
		}
	}

	swept := r.monitor.Sweep(r.env.Clock.Now(), r)
	clear(r.pongs)
	// Frames handled while waiting for pongs.
	events = append(events, r.pending...)
	r.pending = r.pending[:0]
	for _, e := range swept {
		if e.Type == hostlink.TypeOnline && !e.Online {
			r.env.Indicator.Pulse(r.env.Clock.Now(), indicator.Red, indicator.WentDown)
		}
	}
	events = append(events, swept...)

	if r.env.Receive.StatsPath != "" && r.statsT.Due(now, nil) {
		r.writeStats(now)
	}
	return events
}

// drain handles every pending frame. Monitor events land in r.pending.
func (r *Receiver) drain() {
	for {
		fr, ok := r.env.Radio.Recv()
		if !ok {
			return
		}
		r.handle(fr)
	}
}

func (r *Receiver) handle(fr radio.Frame) {
	p, err := packet.Decode(fr.Payload)
	if err != nil {
		r.log.Tracef("drop frame from %s: %v", fr.Src, err)
		return
	}
	switch p := p.(type) {
	case packet.Identity:
		r.table.Observe(p)
		if p.Virtual.Role() == identity.RoleSender {
			if sid, ok := p.Virtual.ID(); ok {
				r.senderPhys[sid] = p.Physical
			}
		}
	case packet.Telemetry:
		if p.Dest != r.self {
			return
		}
		r.env.Indicator.Pulse(r.env.Clock.Now(), indicator.White, indicator.Received)
		if p.Kind == packet.KindPong {
			if rec, ok := r.monitor.Record(p.SenderID); ok && rec.State == liveness.Verifying {
				r.pongs[p.SenderID] = p
				return
			}
		}
		r.pending = append(r.pending, r.monitor.Observe(r.env.Clock.Now(), p)...)
	}
}

// Ping sends one ping to the sender's physical address learned from its
// identity broadcasts.
func (r *Receiver) Ping(sid uint8) error {
	dst, ok := r.senderPhys[sid]
	if !ok {
		return liveness.ErrNoRoute
	}
	if err := r.env.Radio.AddPeer(dst); err != nil {
		r.log.Debugf("add sender %d peer %s: %v", sid, dst, err)
	}
	payload := packet.EncodeTelemetry(packet.Telemetry{
		Dest:     identity.VirtualFor(identity.RoleSender, sid),
		SenderID: r.env.Device.ID,
		Kind:     packet.KindPing,
	})
	return r.env.Radio.Send(dst, payload)
}

// AwaitPong polls the radio until a pong from sid arrives, any other
// packet returns the sender to online, or wait elapses. Everything else
// received meanwhile is handled normally.
func (r *Receiver) AwaitPong(sid uint8, wait time.Duration) (packet.Telemetry, bool) {
	clk := r.env.Clock
	deadline := clk.Now().Add(wait)
	for {
		r.drain()
		if pong, ok := r.pongs[sid]; ok {
			delete(r.pongs, sid)
			return pong, true
		}
		if rec, ok := r.monitor.Record(sid); ok && rec.State != liveness.Verifying {
			return packet.Telemetry{}, false
		}
		if !clk.Now().Before(deadline) {
			return packet.Telemetry{}, false
		}
		step := DefaultPollStep
		if left := deadline.Sub(clk.Now()); left < step {
			step = left
		}
		if err := clk.Sleep(r.ctx, step); err != nil {
			return packet.Telemetry{}, false
		}
	}
}

func (r *Receiver) writeStats(now time.Time) {
	records := r.monitor.Records()
	if len(records) == 0 {
		return
	}
	samples := make([]metrics.Sample, 0, len(records))
	for _, rec := range records {
		samples = append(samples, metrics.Sample{
			Timestamp: now,
			RunID:     r.env.Receive.RunID,
			SenderID:  rec.SenderID,
			State:     rec.State.String(),
			LastSeq:   rec.LastSeq,
			MissedSeq: rec.MissedSeq,
			Received:  rec.Received,
			Pings:     rec.Pings,
			Ramp:      rec.Ramp,
			Motion:    rec.Motion,
		})
	}
	if err := metrics.AppendCSV(r.env.Receive.StatsPath, samples); err != nil {
		r.log.Warnf("append stats %s: %v", r.env.Receive.StatsPath, err)
	}
}
