package node

import (
	"context"
	"time"

	"github.com/pion/logging"

	"meshlink/internal/clock"
	"meshlink/internal/hostlink"
	"meshlink/internal/identity"
	"meshlink/internal/indicator"
	"meshlink/internal/packet"
	"meshlink/internal/radio"
)

// Sender reports sensor state to the Receiver: Data on every change,
// Heartbeat and Identity on jittered timers, Pong on Ping.
type Sender struct {
	env  Env
	self identity.VirtualAddress
	log  logging.LeveledLogger

	receiverPhys identity.PhysicalAddress
	haveReceiver bool

	seq        uint16
	sent       bool
	lastRamp   uint16
	lastMotion uint16

	identityT  clock.Deadline
	heartbeatT clock.Deadline
}

func NewSender(env Env) *Sender {
	env.applyDefaults()
	return &Sender{
		env:  env,
		self: env.Device.Virtual(),
		log:  env.Logs.NewLogger("sender"),
		identityT: clock.Deadline{
			Period: env.Timing.IdentityInterval,
			Jitter: env.Timing.IdentityJitter,
		},
		heartbeatT: clock.Deadline{
			Period: env.Timing.HeartbeatInterval,
			Jitter: env.Timing.HeartbeatJitter,
		},
	}
}

func (s *Sender) Interval() time.Duration { return s.env.Timing.SenderTick }

// Seq is the sequence number the next telemetry packet will carry.
func (s *Sender) Seq() uint16 { return s.seq }

// ReceiverPhysical is the learned Receiver address, if any.
func (s *Sender) ReceiverPhysical() (identity.PhysicalAddress, bool) {
	return s.receiverPhys, s.haveReceiver
}

// Boot announces the sender, listens for the Receiver's identity for the
// boot window, then sends one Heartbeat and one Pong so the Receiver marks
// it online without waiting for the first Data.
func (s *Sender) Boot(ctx context.Context) ([]hostlink.Event, error) {
	t := s.env.Timing
	clk := s.env.Clock
	s.env.Indicator.Set(indicator.RoleColor(identity.RoleSender))

	if err := clk.Sleep(ctx, clock.Up(s.env.Jitter, t.BootJitter)); err != nil {
		return nil, err
	}
	if err := broadcastIdentity(s.env.Radio, s.self); err != nil {
		s.log.Warnf("boot identity: %v", err)
	}

	end := clk.Now().Add(t.BootWindow)
	for clk.Now().Before(end) {
		s.drain()
		s.env.Indicator.Service(clk.Now())
		if err := clk.Sleep(ctx, t.BootStep); err != nil {
			return nil, err
		}
	}

	ramp, motion := s.env.Sensor.Read()
	s.sendTelemetry(packet.KindHeartbeat, ramp, motion)
	s.sendTelemetry(packet.KindPong, ramp, motion)

	now := clk.Now()
	s.identityT.Start(now, s.env.Jitter, t.IdentityFirstJitter)
	s.heartbeatT.Start(now, s.env.Jitter, t.HeartbeatFirst)
	s.log.Infof("sender %s booted (receiver known=%v)", s.self, s.haveReceiver)
	return nil, nil
}

// Tick never produces host events; senders have no host link.
func (s *Sender) Tick(ctx context.Context) []hostlink.Event {
	now := s.env.Clock.Now()
	s.drain()

	if s.identityT.Due(now, s.env.Jitter) {
		if err := broadcastIdentity(s.env.Radio, s.self); err != nil {
			s.log.Debugf("identity: %v", err)
		}
	}

	ramp, motion := s.env.Sensor.Read()
	if s.heartbeatT.Due(now, s.env.Jitter) {
		s.sendTelemetry(packet.KindHeartbeat, ramp, motion)
	}
	if !s.sent || ramp != s.lastRamp || motion != s.lastMotion {
		s.sendTelemetry(packet.KindData, ramp, motion)
		s.sent = true
		s.lastRamp, s.lastMotion = ramp, motion
	}
	return nil
}

func (s *Sender) drain() {
	for {
		fr, ok := s.env.Radio.Recv()
		if !ok {
			return
		}
		p, err := packet.Decode(fr.Payload)
		if err != nil {
			s.log.Tracef("drop frame from %s: %v", fr.Src, err)
			continue
		}
		switch p := p.(type) {
		case packet.Identity:
			if p.Virtual != s.env.Receiver {
				continue
			}
			s.receiverPhys, s.haveReceiver = p.Physical, true
			if err := s.env.Radio.AddPeer(p.Physical); err != nil {
				s.log.Warnf("add receiver peer %s: %v", p.Physical, err)
			}
		case packet.Telemetry:
			if p.Kind == packet.KindPing && p.Dest == s.self {
				s.pong(fr.Src)
			}
		}
	}
}

// pong answers a ping directly to the pinger, retrying send failures.
func (s *Sender) pong(to identity.PhysicalAddress) {
	ramp, motion := s.env.Sensor.Read()
	payload := s.next(packet.KindPong, ramp, motion)
	if err := s.env.Radio.AddPeer(to); err != nil {
		s.log.Debugf("add pinger peer %s: %v", to, err)
	}
	now := s.env.Clock.Now()
	if err := radio.SendAll(s.env.Radio, to, payload, s.env.Timing.PongRetries); err != nil {
		s.log.Warnf("pong to %s: %v", to, err)
		s.env.Indicator.Pulse(now, indicator.Red, indicator.SendFail)
		return
	}
	s.env.Indicator.Pulse(now, indicator.Cyan, indicator.PongSent)
}

// sendTelemetry sends to the learned Receiver, or broadcasts until one is
// known. Failures are not retried.
func (s *Sender) sendTelemetry(kind packet.Kind, ramp, motion uint16) {
	payload := s.next(kind, ramp, motion)
	dst := identity.Broadcast
	if s.haveReceiver {
		dst = s.receiverPhys
	}
	now := s.env.Clock.Now()
	if err := s.env.Radio.Send(dst, payload); err != nil {
		s.log.Debugf("%s seq=%d to %s: %v", kind, s.seq-1, dst, err)
		s.env.Indicator.Pulse(now, indicator.Red, indicator.SendFail)
		return
	}
	s.env.Indicator.Pulse(now, indicator.White, indicator.SendOK)
}

// next encodes one telemetry packet and advances seq.
func (s *Sender) next(kind packet.Kind, ramp, motion uint16) []byte {
	t := packet.Telemetry{
		Dest:     s.env.Receiver,
		SenderID: s.env.Device.ID,
		Kind:     kind,
		Ramp:     ramp,
		Motion:   motion,
		Seq:      s.seq,
	}
	s.seq++
	return packet.EncodeTelemetry(t)
}
