package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meshlink/internal/clock"
	"meshlink/internal/config"
	"meshlink/internal/hostlink"
	"meshlink/internal/identity"
	"meshlink/internal/node"
	"meshlink/internal/radio/sim"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a whole network in-process on a simulated radio medium",
	Long: `Run one Receiver, an optional Relay and several Senders on an in-memory
radio medium. The Receiver's line protocol goes to stdout.

Examples:
  # Three senders that only reach the receiver through a relay
  meshlink sim --senders 3 --relay

  # Drop 20% of deliveries for one minute
  meshlink sim --loss 0.2 --duration 1m`,
	RunE: runSim,
}

var (
	simSenders  int
	simRelay    bool
	simDuration time.Duration
	simLoss     float64
	simSeed     uint64
	simFlip     time.Duration
)

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().IntVar(&simSenders, "senders", 3, "number of senders (1-15)")
	simCmd.Flags().BoolVar(&simRelay, "relay", true, "route senders through a relay")
	simCmd.Flags().DurationVar(&simDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	simCmd.Flags().Float64Var(&simLoss, "loss", 0, "fraction of deliveries to drop")
	simCmd.Flags().Uint64Var(&simSeed, "seed", 1, "jitter and loss seed")
	simCmd.Flags().DurationVar(&simFlip, "flip", 7*time.Second, "how often each sender's ramp changes")
}

func simAddr(role identity.Role, id uint8) identity.PhysicalAddress {
	return identity.PhysicalAddress{0x02, 0x5e, 0, 0, uint8(role), id}
}

func runSim(cmd *cobra.Command, _ []string) error {
	if simSenders < 1 || simSenders > identity.MaxID {
		return fmt.Errorf("--senders must be 1-%d", identity.MaxID)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Radio.Driver = "sim"
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logs, err := loggers(cfg)
	if err != nil {
		return err
	}
	log := logs.NewLogger("sim")
	runID := uuid.NewString()

	medium := sim.NewMedium()
	if simLoss > 0 {
		j := clock.NewJitter(simSeed)
		var mu sync.Mutex
		medium.SetDrop(func(_, _ identity.PhysicalAddress, _ []byte) bool {
			mu.Lock()
			defer mu.Unlock()
			return float64(j.Int64N(1_000_000)) < simLoss*1_000_000
		})
	}

	recvDev := identity.Device{Role: identity.RoleReceiver, ID: 1}
	if v := recvDev.Virtual(); v != identity.VirtualAddress(cfg.Network.Receiver) {
		return fmt.Errorf("sim receiver is %s but network.receiver is %s", v, cfg.Network.Receiver)
	}
	devices := []identity.Device{recvDev}
	relayDev := identity.Device{Role: identity.RoleRelay, ID: 1}
	if simRelay {
		devices = append(devices, relayDev)
	}
	for i := 1; i <= simSenders; i++ {
		devices = append(devices, identity.Device{Role: identity.RoleSender, ID: uint8(i)})
	}
	if simRelay {
		medium.Link(simAddr(recvDev.Role, recvDev.ID), simAddr(relayDev.Role, relayDev.ID))
		for _, d := range devices {
			if d.Role == identity.RoleSender {
				medium.Link(simAddr(d.Role, d.ID), simAddr(relayDev.Role, relayDev.ID))
			}
		}
	}

	ctx, cancel := signalContext()
	defer cancel()
	if simDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, simDuration)
		defer cancel()
	}

	log.Infof("sim run=%s receiver=%s senders=%d relay=%v loss=%.2f", runID, recvDev.Virtual(), simSenders, simRelay, simLoss)
	sink := hostlink.NewWriterSink(cmd.OutOrStdout())
	errs := make(chan error, len(devices))
	var wg sync.WaitGroup
	for i, dev := range devices {
		r, err := medium.Attach(simAddr(dev.Role, dev.ID))
		if err != nil {
			return err
		}
		env := nodeEnv(cfg, dev, r, logs, runID)
		env.Jitter = clock.NewJitter(simSeed + uint64(i) + 1)
		if dev.Role == identity.RoleSender {
			env.Sensor = flippingSensor(dev.ID, simFlip, cfg.Sensor.Mapping)
		}
		role, err := node.New(env)
		if err != nil {
			return err
		}
		opts := node.Options{Clock: env.Clock, Log: logs.NewLogger(dev.Role.String())}
		if dev.Role == identity.RoleReceiver {
			opts.Sink = sink
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := node.Run(ctx, role, opts); err != nil {
				errs <- fmt.Errorf("%s: %w", dev, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

// flippingSensor cycles the ramp through its three values, staggered per
// sender, and reports operating while the ramp is up.
func flippingSensor(id uint8, every time.Duration, m config.MotionMapping) node.Sensor {
	if every <= 0 {
		return node.StaticSensor{Motion: m.Standby}
	}
	return node.SensorFunc(func() (uint16, uint16) {
		step := uint16((time.Now().UnixNano()/int64(every) + int64(id)) % 3)
		if step == node.RampUp {
			return step, m.Operating
		}
		return step, m.Standby
	})
}
