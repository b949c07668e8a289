package clock

import "time"

// Deadline is a jittered periodic timer polled from a loop.
type Deadline struct {
	Period time.Duration
	Jitter time.Duration

	next time.Time
}

// Start arms the first expiry at now + Period + jitter[0, first).
func (d *Deadline) Start(now time.Time, j Jitter, first time.Duration) {
	d.next = now.Add(d.Period + Up(j, first))
}

// Due reports whether the deadline passed. When it has, it re-arms at
// now + Period + jitter[0, Jitter).
func (d *Deadline) Due(now time.Time, j Jitter) bool {
	if d.Period <= 0 || now.Before(d.next) {
		return false
	}
	d.next = now.Add(d.Period + Up(j, d.Jitter))
	return true
}

// Next returns the armed expiry.
func (d *Deadline) Next() time.Time { return d.next }
