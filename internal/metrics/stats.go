package metrics

import (
	"math"
	"sort"
	"time"
)

// Summary is per-sender statistics over a time window.
type Summary struct {
	SenderID  uint8
	Count     int
	From      time.Time
	To        time.Time
	OnlinePct float64
	Missed    uint64
	Received  uint64
	LossPct   float64
	// P95Missed is the 95th percentile of sequence numbers lost between
	// consecutive samples.
	P95Missed float64
	MaxMissed float64
}

type runKey struct {
	run string
	sid uint8
}

// Summarize computes one Summary per sender for samples at or after since.
// Counters restart with every run, so deltas are taken within a run only.
func Summarize(items []Sample, since time.Time) []Summary {
	filtered := make([]Sample, 0, len(items))
	for _, m := range items {
		if m.Timestamp.After(since) || m.Timestamp.Equal(since) {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })

	type acc struct {
		s         Summary
		online    int
		intervals []float64
	}
	bySender := map[uint8]*acc{}
	last := map[runKey]Sample{}

	for _, m := range filtered {
		a, ok := bySender[m.SenderID]
		if !ok {
			a = &acc{s: Summary{SenderID: m.SenderID, From: m.Timestamp}}
			bySender[m.SenderID] = a
		}
		a.s.Count++
		a.s.To = m.Timestamp
		if m.Online() {
			a.online++
		}
		key := runKey{m.RunID, m.SenderID}
		if prev, ok := last[key]; ok {
			missed := counterDelta(uint64(prev.MissedSeq), uint64(m.MissedSeq))
			a.s.Missed += missed
			a.s.Received += counterDelta(prev.Received, m.Received)
			a.intervals = append(a.intervals, float64(missed))
		}
		last[key] = m
	}

	out := make([]Summary, 0, len(bySender))
	for _, a := range bySender {
		a.s.OnlinePct = 100 * float64(a.online) / float64(a.s.Count)
		if total := a.s.Missed + a.s.Received; total > 0 {
			a.s.LossPct = 100 * float64(a.s.Missed) / float64(total)
		}
		sort.Float64s(a.intervals)
		a.s.P95Missed = percentile(a.intervals, 0.95)
		if n := len(a.intervals); n > 0 {
			a.s.MaxMissed = a.intervals[n-1]
		}
		out = append(out, a.s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out
}

func counterDelta(prev, next uint64) uint64 {
	if next < prev {
		return 0
	}
	return next - prev
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
