package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"meshlink/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the Receiver's per-sender stats CSV",
	RunE:  runStats,
}

var (
	statsPath   string
	statsWindow time.Duration
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsPath, "path", "", "stats CSV path (default receiver.metrics_path)")
	statsCmd.Flags().DurationVar(&statsWindow, "window", time.Hour, "time window")
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := statsPath
	if path == "" {
		path = cfg.Receiver.MetricsPath
	}
	if path == "" {
		return errors.New("metrics path required")
	}

	items, err := metrics.ReadCSV(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	summaries := metrics.Summarize(items, time.Now().UTC().Add(-statsWindow))
	if len(summaries) == 0 {
		fmt.Fprintln(out, "no samples in window")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(out, "sender=%d samples=%d from=%s to=%s\n", s.SenderID, s.Count, s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
		fmt.Fprintf(out, "  online=%.1f%% received=%d missed=%d loss=%.2f%% p95_missed=%.0f max_missed=%.0f\n",
			s.OnlinePct, s.Received, s.Missed, s.LossPct, s.P95Missed, s.MaxMissed)
	}
	return nil
}
