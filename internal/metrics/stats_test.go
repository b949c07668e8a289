package metrics

import (
	"testing"
	"time"
)

func TestSummarize_PerSender(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	at := func(s int) time.Time { return now.Add(time.Duration(s) * time.Second) }
	items := []Sample{
		{Timestamp: at(-30), RunID: "a", SenderID: 1, State: "online", MissedSeq: 0, Received: 10},
		{Timestamp: at(-20), RunID: "a", SenderID: 1, State: "online", MissedSeq: 2, Received: 18},
		{Timestamp: at(-10), RunID: "a", SenderID: 1, State: "offline", MissedSeq: 2, Received: 18},
		// New run: counters restart and must not produce a negative delta.
		{Timestamp: at(-5), RunID: "b", SenderID: 1, State: "online", MissedSeq: 0, Received: 1},
		{Timestamp: at(-20), RunID: "a", SenderID: 4, State: "online"},
		{Timestamp: at(-600), RunID: "a", SenderID: 9, State: "online"},
	}
	got := Summarize(items, now.Add(-time.Minute))
	if len(got) != 2 {
		t.Fatalf("summaries=%d", len(got))
	}
	s := got[0]
	if s.SenderID != 1 || s.Count != 4 {
		t.Fatalf("s=%+v", s)
	}
	if s.Missed != 2 || s.Received != 8 {
		t.Fatalf("missed=%d received=%d", s.Missed, s.Received)
	}
	if s.OnlinePct != 75 {
		t.Fatalf("online=%.2f", s.OnlinePct)
	}
	if s.LossPct != 20 {
		t.Fatalf("loss=%.2f", s.LossPct)
	}
	if s.P95Missed != 2 || s.MaxMissed != 2 {
		t.Fatalf("p95=%.2f max=%.2f", s.P95Missed, s.MaxMissed)
	}
	if got[1].SenderID != 4 || got[1].Count != 1 {
		t.Fatalf("second=%+v", got[1])
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	if got := Summarize(nil, time.Time{}); got != nil {
		t.Fatalf("got=%+v", got)
	}
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	if got := percentile(values, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := percentile(values, 1); got != 4 {
		t.Fatalf("p100=%v", got)
	}
}
