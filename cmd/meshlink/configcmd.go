package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meshlink/internal/config"
	"meshlink/internal/identity"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage config files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with every default filled in",
	Long: `Write a config file with every default filled in.

Examples:
  meshlink config init --out receiver.yaml --role receiver --id 1
  meshlink config init --out sender5.yaml --role sender --id 5 --stats ""`,
	RunE: runConfigInit,
}

var (
	initOut   string
	initRole  string
	initID    int
	initStats string
	initForce bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().StringVar(&initOut, "out", "", "output path")
	configInitCmd.Flags().StringVar(&initRole, "role", "sender", "sender, relay or receiver")
	configInitCmd.Flags().IntVar(&initID, "id", 1, "device id (0-15)")
	configInitCmd.Flags().StringVar(&initStats, "stats", "", "receiver stats CSV path")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if err := requireFlag("out", initOut); err != nil {
		return err
	}
	if !initForce {
		if _, err := os.Stat(initOut); err == nil {
			return fmt.Errorf("%s exists; use --force to overwrite", initOut)
		}
	}
	cfg := config.Default()
	cfg.Identity.Role = initRole
	cfg.Identity.ID = initID
	if initStats != "" {
		cfg.Receiver.MetricsPath = initStats
		cfg.Receiver.StatsIntervalSec = 60
	}
	config.Normalize(&cfg)
	if dev, err := cfg.Identity.Device(); err == nil && dev.Role == identity.RoleReceiver {
		cfg.Network.Receiver = string(dev.Virtual())
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(initOut, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", initOut)
	return nil
}
