// Package indicator drives the single status light: a steady role color
// with short colored pulses for traffic events.
package indicator

import (
	"fmt"
	"sync"
	"time"

	"meshlink/internal/identity"
)

// Color is an RGB triple at the dim levels the boards use.
type Color struct{ R, G, B uint8 }

func (c Color) String() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

var (
	Off   = Color{}
	White = Color{25, 25, 25}
	Red   = Color{25, 0, 0}
	Cyan  = Color{0, 25, 25}
)

// Pulse durations for traffic events.
const (
	SendOK    = 40 * time.Millisecond
	SendFail  = 120 * time.Millisecond
	PongSent  = 60 * time.Millisecond
	Received  = 25 * time.Millisecond
	Forwarded = 30 * time.Millisecond
	WentDown  = 120 * time.Millisecond
)

var roleColors = map[identity.Role]Color{
	identity.RoleSender:    {0, 25, 0},
	identity.RoleRelay:     {0, 0, 25},
	identity.RoleReceiver:  {25, 0, 25},
	identity.RoleTelemetry: {25, 15, 0},
	identity.RoleUnknown:   {10, 10, 10},
}

// RoleColor is the steady color of a role.
func RoleColor(r identity.Role) Color {
	if c, ok := roleColors[r]; ok {
		return c
	}
	return roleColors[identity.RoleUnknown]
}

// Indicator is a status light.
type Indicator interface {
	// Set changes the steady color.
	Set(c Color)
	// Pulse shows c until now+d, then Service restores the steady color.
	Pulse(now time.Time, c Color, d time.Duration)
	// Service ends an expired pulse.
	Service(now time.Time)
}

// Output shows a color on real or emulated hardware.
type Output interface {
	Show(c Color) error
}

// Light implements Indicator on top of an Output. Output errors are
// ignored; the light is best-effort.
type Light struct {
	mu     sync.Mutex
	out    Output
	steady Color
	shown  Color
	until  time.Time
}

func NewLight(out Output) *Light { return &Light{out: out, shown: Off} }

func (l *Light) Set(c Color) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steady = c
	l.until = time.Time{}
	l.show(c)
}

func (l *Light) Pulse(now time.Time, c Color, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.until = now.Add(d)
	l.show(c)
}

func (l *Light) Service(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.until.IsZero() && !now.Before(l.until) {
		l.until = time.Time{}
		l.show(l.steady)
	}
}

// Shown returns the color currently displayed.
func (l *Light) Shown() Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shown
}

func (l *Light) show(c Color) {
	if c == l.shown {
		return
	}
	l.shown = c
	if l.out != nil {
		_ = l.out.Show(c)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Set(Color)                             {}
func (Nop) Pulse(time.Time, Color, time.Duration) {}
func (Nop) Service(time.Time)                     {}
