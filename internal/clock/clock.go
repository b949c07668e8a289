// Package clock provides the monotonic time source, deadlines and jitter
// used by the role loops. Tests drive Manual instead of the wall clock.
package clock

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Clock is a monotonic time source that can also block.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the process clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Manual is a clock that only moves when told to. Sleep advances it.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual { return &Manual{now: start} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Advance(d)
	return nil
}

func (m *Manual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Jitter is a source of bounded random integers; *rand.Rand satisfies it.
type Jitter interface {
	Int64N(n int64) int64
}

// Up returns a duration in [0, max). Zero or negative max yields 0.
func Up(j Jitter, max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	return time.Duration(j.Int64N(int64(max)))
}

// NewJitter returns a seeded source; seed 0 picks a random seed.
func NewJitter(seed uint64) Jitter {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NoJitter always returns 0.
type NoJitter struct{}

func (NoJitter) Int64N(int64) int64 { return 0 }
