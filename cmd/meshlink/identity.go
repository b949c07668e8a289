package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"meshlink/internal/identity"
	"meshlink/internal/indicator"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the device identity from config or strap pins",
	Long: `Print the role, id and virtual address this device would run as.

Examples:
  meshlink identity --config sender.yaml
  # MKIV board strapped as relay, id pins B high
  meshlink identity --pins 19,14,5 --revision mkiv`,
	RunE: runIdentity,
}

var (
	identityPins     []int
	identityRevision string
)

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.Flags().IntSliceVar(&identityPins, "pins", nil, "GPIOs strapped high (overrides config)")
	identityCmd.Flags().StringVar(&identityRevision, "revision", "", "hardware revision: auto, mkiv or legacy")
}

func runIdentity(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id := cfg.Identity
	if identityRevision != "" {
		id.Revision = identityRevision
	}
	if len(identityPins) > 0 {
		id.Role = ""
		id.Pins = make(map[int]bool, len(identityPins))
		for _, p := range identityPins {
			id.Pins[p] = true
		}
	}
	dev, err := id.Device()
	if err != nil {
		return err
	}

	c := indicator.RoleColor(dev.Role)
	swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(c.String())).Bold(true).Render(dev.Role.String())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "role:     %s\n", swatch)
	fmt.Fprintf(out, "id:       %d\n", dev.ID)
	fmt.Fprintf(out, "virtual:  %s\n", dev.Virtual())
	fmt.Fprintf(out, "receiver: %s\n", cfg.Network.Receiver)
	if err := dev.Validate(); err != nil {
		return err
	}
	if dev.Role == identity.RoleTelemetry {
		fmt.Fprintln(out, "note:     telemetry role has no event loop")
	}
	return nil
}
