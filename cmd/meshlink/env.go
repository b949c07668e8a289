package main

import (
	"io"

	"github.com/pion/logging"

	"meshlink/internal/clock"
	"meshlink/internal/config"
	"meshlink/internal/identity"
	"meshlink/internal/indicator"
	"meshlink/internal/node"
	"meshlink/internal/radio"
)

// nodeEnv assembles a role environment from config.
func nodeEnv(cfg config.Config, dev identity.Device, r radio.Radio, logs logging.LoggerFactory, runID string) node.Env {
	return node.Env{
		Device:   dev,
		Receiver: identity.VirtualAddress(cfg.Network.Receiver),
		Radio:    r,
		Clock:    clock.Real{},
		Jitter:   clock.NewJitter(cfg.Timing.JitterSeed),
		Timing:   node.TimingFromConfig(cfg.Timing),
		Logs:     logs,
		Sensor:   node.SensorFromConfig(cfg.Sensor),
		Relay: node.RelayOptions{
			QueueCapacity: cfg.Relay.QueueCapacity,
			DrainBatch:    cfg.Relay.DrainBatch,
			TableSize:     cfg.Relay.TableSize,
		},
		Receive: node.ReceiverOptions{
			EmitAlive:     cfg.Receiver.Alive(),
			StatsPath:     cfg.Receiver.MetricsPath,
			StatsInterval: config.Ms(cfg.Receiver.StatsIntervalSec * 1000),
			RunID:         runID,
			TableSize:     cfg.Relay.TableSize,
		},
	}
}

func light(cfg config.Config, w io.Writer, dev identity.Device) indicator.Indicator {
	if !cfg.Indicator.Enabled {
		return indicator.Nop{}
	}
	return indicator.NewLight(indicator.NewTerminal(w, dev.String()))
}
