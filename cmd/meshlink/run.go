package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meshlink/internal/clock"
	"meshlink/internal/config"
	"meshlink/internal/hostlink"
	"meshlink/internal/identity"
	"meshlink/internal/node"
	"meshlink/internal/radio/udp"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this device's role loop on the UDP radio",
	Long: `Run the role named in the config (or decoded from its strap pins).

Examples:
  # Receiver printing the line protocol on stdout
  meshlink run --config receiver.yaml

  # Receiver writing to a serial port
  meshlink run --config receiver.yaml --serial /dev/ttyUSB0`,
	RunE: runNode,
}

var (
	runSerial string
	runSTUN   string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runSerial, "serial", "", "write Receiver output to this serial port")
	runCmd.Flags().StringVar(&runSTUN, "stun", "", "comma-separated STUN servers for public address discovery")
}

func runNode(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runSerial != "" {
		cfg.Receiver.Output = "serial"
		cfg.Receiver.SerialPort = runSerial
	}
	if runSTUN != "" {
		cfg.Radio.STUNServers = splitList(runSTUN)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if cfg.Radio.Driver != "udp" {
		return fmt.Errorf("radio driver %q is only available to the sim command", cfg.Radio.Driver)
	}

	logs, err := loggers(cfg)
	if err != nil {
		return err
	}
	log := logs.NewLogger("main")

	dev, err := cfg.Identity.Device()
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	log.Infof("starting %s (%s) run=%s", dev, dev.Virtual(), runID)

	r, err := udp.Open(udp.Config{
		Listen:      cfg.Radio.Listen,
		Group:       cfg.Radio.Group,
		Interface:   cfg.Radio.Interface,
		Advertise:   cfg.Radio.Advertise,
		STUNServers: cfg.Radio.STUNServers,
	}, logs.NewLogger("radio"))
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if len(cfg.Radio.STUNServers) > 0 {
		if _, nat, err := r.DiscoverPublic(ctx, config.Ms(cfg.Radio.STUNTimeoutMs)); err != nil {
			log.Warnf("public address discovery failed, keeping %s: %v", r.LocalAddr(), err)
		} else {
			log.Infof("nat=%s physical=%s", nat, r.LocalAddr())
		}
	}

	sink, closeSink, err := openSink(cfg, dev.Role, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeSink()

	env := nodeEnv(cfg, dev, r, logs, runID)
	env.Indicator = light(cfg, os.Stderr, dev)
	role, err := node.New(env)
	if err != nil {
		return err
	}
	return node.Run(ctx, role, node.Options{
		Clock:     clock.Real{},
		Sink:      sink,
		Indicator: env.Indicator,
		Log:       log,
	})
}

// openSink picks where a Receiver's host lines go. Other roles emit nothing.
func openSink(cfg config.Config, role identity.Role, stdout io.Writer) (hostlink.Sink, func(), error) {
	if role != identity.RoleReceiver {
		return hostlink.Discard, func() {}, nil
	}
	if cfg.Receiver.Output != "serial" {
		return hostlink.NewWriterSink(stdout), func() {}, nil
	}
	port, err := hostlink.OpenSerial(cfg.Receiver.SerialPort, cfg.Receiver.Baud)
	if err != nil {
		return nil, nil, err
	}
	return hostlink.NewWriterSink(port), func() { _ = port.Close() }, nil
}
