package node

import (
	"context"
	"time"

	"github.com/pion/logging"

	"meshlink/internal/hostlink"
	"meshlink/internal/identity"
	"meshlink/internal/indicator"
	"meshlink/internal/peers"
	"meshlink/internal/radio"
	"meshlink/internal/relay"
)

// RelayOptions sizes the relay's queue and peer table.
type RelayOptions struct {
	QueueCapacity int
	DrainBatch    int
	TableSize     int
}

// Relay queues every received frame and forwards telemetry toward the
// Receiver from its main loop.
type Relay struct {
	env   Env
	log   logging.LeveledLogger
	ring  *relay.Ring
	table *peers.Table
	fwd   *relay.Forwarder
	batch int
	// polled is set when the radio cannot push frames to a handler.
	polled bool
}

func NewRelay(env Env) (*Relay, error) {
	env.applyDefaults()
	opts := env.Relay
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = relay.DefaultCapacity
	}
	if opts.DrainBatch <= 0 {
		opts.DrainBatch = relay.DefaultBatch
	}
	if opts.TableSize <= 0 {
		opts.TableSize = peers.DefaultSize
	}
	table, err := peers.New(env.Receiver, opts.TableSize, env.Logs.NewLogger("peers"))
	if err != nil {
		return nil, err
	}
	ring := relay.NewRing(opts.QueueCapacity)
	r := &Relay{
		env:   env,
		log:   env.Logs.NewLogger("relay"),
		ring:  ring,
		table: table,
		fwd:   relay.NewForwarder(ring, table, env.Radio, env.Logs.NewLogger("forward")),
		batch: opts.DrainBatch,
	}
	r.fwd.OnForward = r.pulse
	return r, nil
}

func (r *Relay) Interval() time.Duration { return r.env.Timing.RelayTick }

func (r *Relay) Table() *peers.Table        { return r.table }
func (r *Relay) Stats() relay.Stats         { return r.fwd.Stats() }
func (r *Relay) QueueDropped() uint64       { return r.ring.Dropped() }
func (r *Relay) Forwarder() *relay.Forwarder { return r.fwd }

// Boot installs the ring as the radio's receive handler when the radio
// supports one.
func (r *Relay) Boot(ctx context.Context) ([]hostlink.Event, error) {
	if n, ok := r.env.Radio.(radio.Notifier); ok {
		n.OnReceive(func(f radio.Frame) { r.ring.Push(f) })
	} else {
		r.polled = true
	}
	r.env.Indicator.Set(indicator.RoleColor(identity.RoleRelay))
	r.log.Infof("relay %s ready (queue=%d batch=%d polled=%v)",
		r.env.Device.Virtual(), r.ring.Cap(), r.batch, r.polled)
	return nil, ctx.Err()
}

func (r *Relay) Tick(ctx context.Context) []hostlink.Event {
	if r.polled {
		for {
			f, ok := r.env.Radio.Recv()
			if !ok {
				break
			}
			r.ring.Push(f)
		}
	}
	r.fwd.Drain(r.batch)
	return nil
}

func (r *Relay) pulse(_ relay.Route, err error) {
	now := r.env.Clock.Now()
	if err != nil {
		r.env.Indicator.Pulse(now, indicator.Red, indicator.SendFail)
		return
	}
	r.env.Indicator.Pulse(now, indicator.White, indicator.Forwarded)
}
