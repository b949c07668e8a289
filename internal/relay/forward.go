package relay

import (
	"errors"

	"github.com/pion/logging"

	"meshlink/internal/identity"
	"meshlink/internal/packet"
	"meshlink/internal/peers"
	"meshlink/internal/radio"
)

// DefaultBatch is how many queued frames one tick handles.
const DefaultBatch = 28

// Route is the path chosen for one forwarded packet.
type Route uint8

const (
	RouteReceiver Route = iota + 1
	RouteRelay
	RouteBroadcast
)

func (r Route) String() string {
	switch r {
	case RouteReceiver:
		return "receiver"
	case RouteRelay:
		return "relay"
	case RouteBroadcast:
		return "broadcast"
	}
	return "none"
}

// Stats counts forwarding outcomes.
type Stats struct {
	Identities   uint64
	Direct       uint64
	ViaRelay     uint64
	Broadcast    uint64
	SendFailures uint64
	DecodeErrors uint64
	AddPeerFails uint64
}

// Forwarder drains the ring and forwards telemetry. It runs on the relay's
// main loop only.
type Forwarder struct {
	ring  *Ring
	table *peers.Table
	radio radio.Radio
	log   logging.LeveledLogger
	stats Stats

	// OnForward, when set, is told the outcome of every forward attempt.
	OnForward func(route Route, err error)
}

func NewForwarder(ring *Ring, table *peers.Table, r radio.Radio, log logging.LeveledLogger) *Forwarder {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("relay")
	}
	return &Forwarder{ring: ring, table: table, radio: r, log: log}
}

// Drain handles at most max queued frames and returns how many it popped.
func (f *Forwarder) Drain(max int) int {
	if max <= 0 {
		max = DefaultBatch
	}
	n := 0
	for ; n < max; n++ {
		fr, ok := f.ring.Pop()
		if !ok {
			break
		}
		f.handle(fr)
	}
	return n
}

func (f *Forwarder) handle(fr radio.Frame) {
	p, err := packet.Decode(fr.Payload)
	if err != nil {
		f.stats.DecodeErrors++
		f.log.Tracef("drop frame from %s: %v", fr.Src, err)
		return
	}
	switch p := p.(type) {
	case packet.Identity:
		f.observe(p)
	case packet.Telemetry:
		route, err := f.Forward(p.Dest, fr.Payload)
		if f.OnForward != nil {
			f.OnForward(route, err)
		}
	}
}

func (f *Forwarder) observe(p packet.Identity) {
	f.stats.Identities++
	_, known := f.table.Lookup(p.Virtual)
	f.table.Observe(p)
	if known {
		return
	}
	if err := f.radio.AddPeer(p.Physical); err != nil {
		f.stats.AddPeerFails++
		f.log.Warnf("add peer %s (%s): %v", p.Virtual, p.Physical, err)
	}
}

// Forward sends payload toward dest: directly to the well-known Receiver
// when it is one hop away, else to the best relay, else broadcast. Send
// failures are counted and returned, never retried.
func (f *Forwarder) Forward(dest identity.VirtualAddress, payload []byte) (Route, error) {
	var (
		route Route
		dst   identity.PhysicalAddress
		ok    bool
	)
	if dest == f.table.Receiver() {
		dst, ok = f.table.ReceiverRoute()
		route = RouteReceiver
	}
	if !ok {
		dst, ok = f.table.BestRelay()
		route = RouteRelay
	}
	if !ok {
		dst = identity.Broadcast
		route = RouteBroadcast
	}

	err := f.radio.Send(dst, payload)
	if err != nil {
		f.stats.SendFailures++
		if !errors.Is(err, radio.ErrClosed) {
			f.log.Debugf("forward %s via %s: %v", dest, route, err)
		}
		return route, err
	}
	switch route {
	case RouteReceiver:
		f.stats.Direct++
	case RouteRelay:
		f.stats.ViaRelay++
	case RouteBroadcast:
		f.stats.Broadcast++
	}
	return route, nil
}

func (f *Forwarder) Stats() Stats { return f.stats }
