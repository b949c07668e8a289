package relay

import (
	"errors"
	"testing"

	"meshlink/internal/identity"
	"meshlink/internal/packet"
	"meshlink/internal/peers"
	"meshlink/internal/radio"
	"meshlink/internal/radio/sim"
)

var (
	relayAddr    = identity.PhysicalAddress{0x02, 0, 0, 0, 1, 1}
	receiverAddr = identity.PhysicalAddress{0x02, 0, 0, 0, 2, 1}
	senderAddr   = identity.PhysicalAddress{0x02, 0, 0, 0, 0, 5}
)

type rig struct {
	medium   *sim.Medium
	relay    *sim.Radio
	receiver *sim.Radio
	sender   *sim.Radio
	ring     *Ring
	table    *peers.Table
	fwd      *Forwarder
}

func newRig(t *testing.T) *rig {
	t.Helper()
	m := sim.NewMedium()
	attach := func(a identity.PhysicalAddress) *sim.Radio {
		r, err := m.Attach(a)
		if err != nil {
			t.Fatalf("Attach: %v", err)
		}
		return r
	}
	g := &rig{medium: m, relay: attach(relayAddr), receiver: attach(receiverAddr), sender: attach(senderAddr)}
	tbl, err := peers.New(identity.DefaultReceiver, 0, nil)
	if err != nil {
		t.Fatalf("peers.New: %v", err)
	}
	g.table = tbl
	g.ring = NewRing(DefaultCapacity)
	g.relay.OnReceive(func(f radio.Frame) { g.ring.Push(f) })
	g.fwd = NewForwarder(g.ring, tbl, g.relay, nil)
	return g
}

func telemetryTo(dest identity.VirtualAddress, seq uint16) []byte {
	return packet.EncodeTelemetry(packet.Telemetry{Dest: dest, SenderID: 5, Kind: packet.KindHeartbeat, Motion: 1, Seq: seq})
}

func lastTx(t *testing.T, m *sim.Medium) sim.Transmission {
	t.Helper()
	txs := m.Transmissions()
	if len(txs) == 0 {
		t.Fatal("no transmissions")
	}
	return txs[len(txs)-1]
}

func TestForward_BroadcastWithoutRoutes(t *testing.T) {
	t.Parallel()

	g := newRig(t)
	route, err := g.fwd.Forward(identity.DefaultReceiver, telemetryTo(identity.DefaultReceiver, 1))
	if err != nil || route != RouteBroadcast {
		t.Fatalf("route=%s err=%v", route, err)
	}
	if tx := lastTx(t, g.medium); !tx.Dst.IsBroadcast() {
		t.Fatalf("dst=%s", tx.Dst)
	}
}

// A relay that learns the Receiver's identity forwards directly to it.
func TestForward_ReceiverIdentityGivesDirectRoute(t *testing.T) {
	t.Parallel()

	g := newRig(t)
	_ = g.receiver.Send(identity.Broadcast, packet.EncodeIdentity(packet.Identity{Virtual: identity.DefaultReceiver, Physical: receiverAddr}))
	_ = g.sender.Send(relayAddr, telemetryTo(identity.DefaultReceiver, 1))
	_ = g.sender.Send(relayAddr, telemetryTo(identity.DefaultReceiver, 2))

	if n := g.fwd.Drain(DefaultBatch); n != 3 {
		t.Fatalf("drained=%d", n)
	}
	rec, ok := g.table.Lookup(identity.DefaultReceiver)
	if !ok || rec.Hop != peers.Known(0) {
		t.Fatalf("rec=%+v", rec)
	}
	if !g.relay.HasPeer(receiverAddr) {
		t.Fatal("receiver not registered as peer")
	}
	got := 0
	for {
		f, ok := g.receiver.Recv()
		if !ok {
			break
		}
		if f.Src != relayAddr {
			t.Fatalf("src=%s", f.Src)
		}
		got++
	}
	if got != 2 {
		t.Fatalf("receiver got %d frames", got)
	}
	if s := g.fwd.Stats(); s.Direct != 2 || s.Identities != 1 || s.Broadcast != 0 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestForward_ReceiverAlwaysDirectOverRelay(t *testing.T) {
	t.Parallel()

	g := newRig(t)
	g.table.Observe(packet.Identity{Virtual: identity.DefaultReceiver, Physical: receiverAddr})
	for i := 0; i < 50; i++ {
		route, err := g.fwd.Forward(identity.DefaultReceiver, telemetryTo(identity.DefaultReceiver, uint16(i)))
		if err != nil || route != RouteReceiver {
			t.Fatalf("i=%d route=%s err=%v", i, route, err)
		}
	}
}

func TestForward_NonReceiverDestBroadcasts(t *testing.T) {
	t.Parallel()

	g := newRig(t)
	g.table.Observe(packet.Identity{Virtual: identity.DefaultReceiver, Physical: receiverAddr})
	route, err := g.fwd.Forward("AC:DB:00:05:05", telemetryTo("AC:DB:00:05:05", 1))
	if err != nil || route != RouteBroadcast {
		t.Fatalf("route=%s err=%v", route, err)
	}
}

func TestForward_SendFailureCountedNotRetried(t *testing.T) {
	t.Parallel()

	g := newRig(t)
	g.table.Observe(packet.Identity{Virtual: identity.DefaultReceiver, Physical: receiverAddr})
	g.medium.Unlink(relayAddr, receiverAddr)

	before := len(g.medium.Transmissions())
	route, err := g.fwd.Forward(identity.DefaultReceiver, telemetryTo(identity.DefaultReceiver, 1))
	if route != RouteReceiver || !errors.Is(err, radio.ErrUnreachable) {
		t.Fatalf("route=%s err=%v", route, err)
	}
	if got := len(g.medium.Transmissions()) - before; got != 1 {
		t.Fatalf("attempts=%d", got)
	}
	if g.fwd.Stats().SendFailures != 1 {
		t.Fatalf("stats=%+v", g.fwd.Stats())
	}
}

func TestDrain_CountsDecodeErrorsAndRespectsBatch(t *testing.T) {
	t.Parallel()

	g := newRig(t)
	g.ring.Push(radio.Frame{Src: senderAddr, Payload: []byte{1, 2, 3}})
	for i := 0; i < 40; i++ {
		g.ring.Push(radio.Frame{Src: senderAddr, Payload: telemetryTo(identity.DefaultReceiver, uint16(i))})
	}
	if n := g.fwd.Drain(DefaultBatch); n != DefaultBatch {
		t.Fatalf("drained=%d", n)
	}
	if g.ring.Len() != 41-DefaultBatch {
		t.Fatalf("left=%d", g.ring.Len())
	}
	if g.fwd.Stats().DecodeErrors != 1 {
		t.Fatalf("stats=%+v", g.fwd.Stats())
	}
}
