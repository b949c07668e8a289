package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"meshlink/internal/config"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "meshlink",
	Short: "Radio mesh telemetry nodes and host tooling",
	Long: `meshlink runs Sender, Relay and Receiver nodes that carry ramp/motion
telemetry over a best-effort datagram radio, and the host-side tools that
consume the Receiver's line protocol.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (error, warn, info, debug, trace)")
}

// loadConfig reads the config file, or returns defaults when none is given.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(configPath); err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	config.Normalize(&cfg)
	return cfg, nil
}

// loggers writes all logs to stderr; stdout carries the host line protocol.
func loggers(cfg config.Config) (*logging.DefaultLoggerFactory, error) {
	return cfg.Log.LoggerFactory(os.Stderr)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
