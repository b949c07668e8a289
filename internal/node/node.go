// Package node runs one device role (Sender, Relay or Receiver) as a
// cooperative, non-blocking tick loop over a radio.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"

	"meshlink/internal/clock"
	"meshlink/internal/config"
	"meshlink/internal/hostlink"
	"meshlink/internal/identity"
	"meshlink/internal/indicator"
	"meshlink/internal/packet"
	"meshlink/internal/radio"
)

// ErrUnsupportedRole is returned for roles that have no event loop.
var ErrUnsupportedRole = errors.New("unsupported role")

// Role is one device's event loop.
type Role interface {
	// Boot runs the role's start-up sequence. It may sleep on the clock.
	Boot(ctx context.Context) ([]hostlink.Event, error)
	// Tick runs one loop iteration and returns the host events it caused.
	Tick(ctx context.Context) []hostlink.Event
	// Interval is the sleep between ticks.
	Interval() time.Duration
}

// Timing holds every interval the role loops use.
type Timing struct {
	SenderTick          time.Duration
	RelayTick           time.Duration
	ReceiverTick        time.Duration
	BootJitter          time.Duration
	BootWindow          time.Duration
	BootStep            time.Duration
	IdentityInterval    time.Duration
	IdentityFirstJitter time.Duration
	IdentityJitter      time.Duration
	HeartbeatInterval   time.Duration
	HeartbeatFirst      time.Duration
	HeartbeatJitter     time.Duration
	HeartbeatTimeout    time.Duration
	PingWait            time.Duration
	PingRetries         int
	PongRetries         int
	ReceiverAlive       time.Duration
}

// TimingFromConfig converts the millisecond config fields.
func TimingFromConfig(c config.TimingConfig) Timing {
	return Timing{
		SenderTick:          config.Ms(c.SenderTickMs),
		RelayTick:           config.Ms(c.RelayTickMs),
		ReceiverTick:        config.Ms(c.ReceiverTickMs),
		BootJitter:          config.Ms(c.BootJitterMs),
		BootWindow:          config.Ms(c.BootWindowMs),
		BootStep:            config.Ms(c.BootStepMs),
		IdentityInterval:    config.Ms(c.IdentityIntervalMs),
		IdentityFirstJitter: config.Ms(c.IdentityFirstJitterMs),
		IdentityJitter:      config.Ms(c.IdentityJitterMs),
		HeartbeatInterval:   config.Ms(c.HeartbeatIntervalMs),
		HeartbeatFirst:      config.Ms(c.HeartbeatFirstJitter),
		HeartbeatJitter:     config.Ms(c.HeartbeatJitterMs),
		HeartbeatTimeout:    config.Ms(c.HeartbeatTimeoutMs),
		PingWait:            config.Ms(c.PingWaitMs),
		PingRetries:         c.PingRetries,
		PongRetries:         c.PongRetries,
		ReceiverAlive:       config.Ms(c.ReceiverAliveMs),
	}
}

// DefaultTiming is TimingFromConfig applied to the config defaults.
func DefaultTiming() Timing { return TimingFromConfig(config.Default().Timing) }

// Env is what every role is built from.
type Env struct {
	Device    identity.Device
	Receiver  identity.VirtualAddress
	Radio     radio.Radio
	Clock     clock.Clock
	Jitter    clock.Jitter
	Indicator indicator.Indicator
	Timing    Timing
	Logs      logging.LoggerFactory

	Sensor  Sensor
	Relay   RelayOptions
	Receive ReceiverOptions
}

func (e *Env) applyDefaults() {
	if e.Receiver == "" {
		e.Receiver = identity.DefaultReceiver
	}
	if e.Clock == nil {
		e.Clock = clock.Real{}
	}
	if e.Jitter == nil {
		e.Jitter = clock.NewJitter(0)
	}
	if e.Indicator == nil {
		e.Indicator = indicator.Nop{}
	}
	if e.Timing == (Timing{}) {
		e.Timing = DefaultTiming()
	}
	if e.Logs == nil {
		e.Logs = logging.NewDefaultLoggerFactory()
	}
	if e.Sensor == nil {
		e.Sensor = StaticSensor{}
	}
}

// New builds the role loop for env.Device.
func New(env Env) (Role, error) {
	env.applyDefaults()
	if err := env.Device.Validate(); err != nil {
		env.Indicator.Set(indicator.Red)
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedRole, err)
	}
	if env.Radio == nil {
		return nil, errors.New("node: radio is required")
	}
	switch env.Device.Role {
	case identity.RoleSender:
		return NewSender(env), nil
	case identity.RoleRelay:
		r, err := NewRelay(env)
		if err != nil {
			return nil, err
		}
		return r, nil
	case identity.RoleReceiver:
		r, err := NewReceiver(env)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	env.Indicator.Set(indicator.Red)
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedRole, env.Device.Role)
}

// Options configures Run.
type Options struct {
	Clock     clock.Clock
	Sink      hostlink.Sink
	Indicator indicator.Indicator
	Log       logging.LeveledLogger
	// MaxTicks stops the loop after that many ticks when positive.
	MaxTicks int
}

// Run boots role and ticks it until ctx is done. Events go to opts.Sink.
// A cancelled context is not an error.
func Run(ctx context.Context, role Role, opts Options) error {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Sink == nil {
		opts.Sink = hostlink.Discard
	}
	if opts.Indicator == nil {
		opts.Indicator = indicator.Nop{}
	}
	if opts.Log == nil {
		opts.Log = logging.NewDefaultLoggerFactory().NewLogger("node")
	}

	events, err := role.Boot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("boot: %w", err)
	}
	emit(opts, events)

	for ticks := 0; opts.MaxTicks <= 0 || ticks < opts.MaxTicks; ticks++ {
		if ctx.Err() != nil {
			return nil
		}
		emit(opts, role.Tick(ctx))
		opts.Indicator.Service(opts.Clock.Now())
		if err := opts.Clock.Sleep(ctx, role.Interval()); err != nil {
			return nil
		}
	}
	return nil
}

func emit(opts Options, events []hostlink.Event) {
	if len(events) == 0 {
		return
	}
	if err := opts.Sink.Emit(events...); err != nil {
		opts.Log.Warnf("emit %d host events: %v", len(events), err)
	}
}

// broadcastIdentity announces self on the broadcast address.
func broadcastIdentity(r radio.Radio, self identity.VirtualAddress) error {
	payload := packet.EncodeIdentity(packet.Identity{Virtual: self, Physical: r.LocalAddr()})
	return r.Send(identity.Broadcast, payload)
}
