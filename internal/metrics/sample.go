// Package metrics records periodic per-sender liveness samples taken on the
// Receiver and summarizes them.
package metrics

import "time"

// Sample is one sender's counters at one point in time.
type Sample struct {
	Timestamp time.Time
	RunID     string
	SenderID  uint8
	State     string
	LastSeq   uint16
	MissedSeq uint32
	Received  uint64
	Pings     uint64
	Ramp      uint16
	Motion    uint16
}

// Online reports whether the sender was considered reachable.
func (s Sample) Online() bool { return s.State == "online" || s.State == "verifying" }
