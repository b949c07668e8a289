package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pion/logging"

	"meshlink/internal/clock"
	"meshlink/internal/config"
	"meshlink/internal/hostlink"
)

func TestBoardHandler_FollowCapture(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC))
	var out bytes.Buffer
	h := &boardHandler{
		board:   hostlink.NewBoard(),
		clock:   clk,
		out:     &out,
		refresh: time.Hour,
		log:     logging.NewDefaultLoggerFactory().NewLogger("monitor"),
	}
	capture := "R,1\r\nO,5,1\nS,5,2,1,10\nbogus\n0,6,1\nS,6,1,0,3"
	if err := hostlink.Follow(context.Background(), strings.NewReader(capture), h); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	if !h.board.ReceiverOnline() || h.board.MalformedLines() != 1 {
		t.Fatalf("online=%v malformed=%d", h.board.ReceiverOnline(), h.board.MalformedLines())
	}
	senders := h.board.Senders()
	if len(senders) != 2 || senders[0].ID != 5 || senders[0].Motion != 2 || senders[1].Seq != 3 {
		t.Fatalf("senders=%+v", senders)
	}
	// First line rendered immediately, then nothing within the refresh window.
	if n := strings.Count(out.String(), "\n"); n == 0 {
		t.Fatal("board never rendered")
	}
}

func TestFlippingSensor(t *testing.T) {
	t.Parallel()

	m := config.MotionMapping{Standby: 1, Operating: 2}
	if ramp, motion := flippingSensor(3, 0, m).Read(); ramp != 0 || motion != 1 {
		t.Fatalf("static ramp=%d motion=%d", ramp, motion)
	}
	ramp, motion := flippingSensor(3, time.Second, m).Read()
	if ramp > 2 || (ramp == 1) != (motion == 2) {
		t.Fatalf("ramp=%d motion=%d", ramp, motion)
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	got := splitList(" stun.l.google.com:19302, ,stun1.l.google.com:19302 ")
	if len(got) != 2 || got[1] != "stun1.l.google.com:19302" {
		t.Fatalf("got=%v", got)
	}
	if splitList("") != nil {
		t.Fatal("empty list not nil")
	}
}
