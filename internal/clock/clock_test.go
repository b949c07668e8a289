package clock

import (
	"context"
	"testing"
	"time"
)

type fixedJitter int64

func (f fixedJitter) Int64N(n int64) int64 {
	if int64(f) >= n {
		return n - 1
	}
	return int64(f)
}

func TestManualSleepAdvances(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	m := NewManual(start)
	if err := m.Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if got := m.Now().Sub(start); got != 20*time.Millisecond {
		t.Fatalf("elapsed=%s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Sleep(ctx, time.Second); err == nil {
		t.Fatalf("expected cancellation")
	}
	if got := m.Now().Sub(start); got != 20*time.Millisecond {
		t.Fatalf("cancelled sleep advanced clock: %s", got)
	}
}

func TestRealSleepCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Real{}).Sleep(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("err=%v", err)
	}
}

func TestUp(t *testing.T) {
	t.Parallel()

	if got := Up(nil, time.Second); got != 0 {
		t.Fatalf("nil jitter=%s", got)
	}
	if got := Up(fixedJitter(5), 0); got != 0 {
		t.Fatalf("zero max=%s", got)
	}
	j := NewJitter(42)
	for i := 0; i < 1000; i++ {
		if got := Up(j, 400*time.Millisecond); got < 0 || got >= 400*time.Millisecond {
			t.Fatalf("out of range: %s", got)
		}
	}
}

func TestDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(100, 0)
	d := Deadline{Period: 12 * time.Second, Jitter: 2 * time.Second}
	d.Start(now, fixedJitter(int64(time.Second)), 1500*time.Millisecond)
	if want := now.Add(13 * time.Second); !d.Next().Equal(want) {
		t.Fatalf("next=%s want %s", d.Next(), want)
	}
	if d.Due(now.Add(12*time.Second), NoJitter{}) {
		t.Fatalf("due early")
	}
	fire := now.Add(13 * time.Second)
	if !d.Due(fire, NoJitter{}) {
		t.Fatalf("not due")
	}
	if want := fire.Add(12 * time.Second); !d.Next().Equal(want) {
		t.Fatalf("rearmed next=%s want %s", d.Next(), want)
	}
	if d.Due(fire, NoJitter{}) {
		t.Fatalf("fired twice")
	}
}

func TestDeadlineDisabled(t *testing.T) {
	t.Parallel()

	var d Deadline
	d.Start(time.Unix(0, 0), NoJitter{}, 0)
	if d.Due(time.Unix(1000, 0), NoJitter{}) {
		t.Fatalf("zero period fired")
	}
}
