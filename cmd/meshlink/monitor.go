package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"meshlink/internal/clock"
	"meshlink/internal/hostlink"
	"meshlink/internal/store"
)

const reconnectDelay = 2 * time.Second

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow a Receiver's line protocol and show every sender",
	Long: `Read R/O/S lines from a serial port (or a captured file), keep a board
of sender states and motion sessions, and persist it between runs.

Examples:
  meshlink monitor --port /dev/ttyUSB0 --state monitor.yaml
  meshlink monitor --port auto
  meshlink monitor --file capture.log`,
	RunE: runMonitor,
}

var (
	monPort            string
	monFile            string
	monBaud            int
	monState           string
	monRefresh         time.Duration
	monReceiverTimeout time.Duration
	monSenderTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monPort, "port", "", `serial port, or "auto" for the first one found`)
	monitorCmd.Flags().StringVar(&monFile, "file", "", "read lines from a file instead of a serial port")
	monitorCmd.Flags().IntVar(&monBaud, "baud", hostlink.DefaultBaud, "serial baud rate")
	monitorCmd.Flags().StringVar(&monState, "state", "", "YAML snapshot path loaded at start and saved on every refresh")
	monitorCmd.Flags().DurationVar(&monRefresh, "refresh", 5*time.Second, "board redraw interval")
	monitorCmd.Flags().DurationVar(&monReceiverTimeout, "receiver-timeout", hostlink.DefaultReceiverTimeout, "receiver offline after this much silence")
	monitorCmd.Flags().DurationVar(&monSenderTimeout, "sender-timeout", hostlink.DefaultSenderTimeout, "sender offline after this long without updates")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	if monPort == "" && monFile == "" {
		return errors.New("--port or --file is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logs, err := loggers(cfg)
	if err != nil {
		return err
	}

	board := hostlink.NewBoard()
	board.ReceiverTimeout = monReceiverTimeout
	board.SenderTimeout = monSenderTimeout
	board.Operating = cfg.Sensor.Mapping.Operating

	var prev *store.Registry
	if monState != "" {
		if prev, err = store.LoadRegistry(monState); err != nil {
			return err
		}
		board.Restore(prev.Views())
	}

	h := &boardHandler{
		board:   board,
		clock:   clock.Real{},
		out:     cmd.OutOrStdout(),
		refresh: monRefresh,
		log:     logs.NewLogger("monitor"),
		prev:    prev,
		runID:   uuid.NewString(),
	}
	defer h.flush()

	ctx, cancel := signalContext()
	defer cancel()

	if monFile != "" {
		f, err := os.Open(monFile)
		if err != nil {
			return err
		}
		defer f.Close()
		return hostlink.Follow(ctx, f, h)
	}
	return followSerial(ctx, h)
}

// followSerial keeps the port open, reconnecting after every failure until
// ctx is done.
func followSerial(ctx context.Context, h *boardHandler) error {
	for {
		port := monPort
		if port == "auto" {
			ports, err := hostlink.SerialPorts()
			if err != nil || len(ports) == 0 {
				h.log.Warnf("no serial ports found: %v", err)
				port = ""
			} else {
				port = ports[0]
			}
		}
		if port != "" {
			if err := followPort(ctx, port, h); err != nil && ctx.Err() == nil {
				h.log.Warnf("serial %s: %v", port, err)
			}
			h.board.Disconnected()
			h.render(h.clock.Now())
		}
		if err := h.clock.Sleep(ctx, reconnectDelay); err != nil {
			return nil
		}
	}
}

func followPort(ctx context.Context, name string, h *boardHandler) error {
	p, err := hostlink.OpenSerial(name, monBaud)
	if err != nil {
		return err
	}
	defer p.Close()
	if rt, ok := p.(hostlink.ReadTimeouter); ok {
		if err := rt.SetReadTimeout(time.Second); err != nil {
			return err
		}
	}
	h.log.Infof("following %s at %d baud", name, monBaud)
	return hostlink.Follow(ctx, p, h)
}

// boardHandler feeds Follow's lines into the board and redraws it.
type boardHandler struct {
	board   *hostlink.Board
	clock   clock.Clock
	out     io.Writer
	refresh time.Duration
	log     logging.LeveledLogger
	prev    *store.Registry
	runID   string

	lastRender time.Time
}

func (h *boardHandler) Line(line string, ev hostlink.Event, err error) {
	now := h.clock.Now()
	h.board.Activity(now)
	if err != nil {
		h.board.Malformed(now)
		h.log.Debugf("%v", err)
	} else {
		h.board.Apply(now, ev)
	}
	h.tick(now)
}

func (h *boardHandler) Idle() { h.tick(h.clock.Now()) }

func (h *boardHandler) tick(now time.Time) {
	if h.board.Expire(now) {
		h.log.Infof("timeouts changed the board")
	}
	if now.Sub(h.lastRender) >= h.refresh {
		h.render(now)
	}
}

func (h *boardHandler) render(now time.Time) {
	h.lastRender = now
	fmt.Fprintln(h.out, h.board.Render(now))
	h.save()
}

func (h *boardHandler) save() {
	if monState == "" {
		return
	}
	if err := store.SaveRegistry(monState, store.FromBoard(h.board, h.prev, h.runID)); err != nil {
		h.log.Warnf("save %s: %v", monState, err)
	}
}

func (h *boardHandler) flush() { h.render(h.clock.Now()) }
