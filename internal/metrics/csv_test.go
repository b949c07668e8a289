package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendCSV_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "stats", "senders.csv")

	m1 := Sample{Timestamp: time.Unix(1, 0).UTC(), RunID: "r1", SenderID: 1, State: "online"}
	m2 := Sample{Timestamp: time.Unix(2, 0).UTC(), RunID: "r1", SenderID: 2, State: "offline"}

	if err := AppendCSV(path, []Sample{m1}); err != nil {
		t.Fatalf("AppendCSV #1: %v", err)
	}
	if err := AppendCSV(path, []Sample{m2}); err != nil {
		t.Fatalf("AppendCSV #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "timestamp,") {
		t.Fatalf("missing header: %q", lines[0])
	}
}

func TestReadCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []Sample{{
		Timestamp: time.Unix(100, 5).UTC(),
		RunID:     "run",
		SenderID:  7,
		State:     "verifying",
		LastSeq:   65535,
		MissedSeq: 12,
		Received:  400,
		Pings:     2,
		Ramp:      1,
		Motion:    2,
	}}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, in); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out, err := readCSV(&buf)
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(out) != 1 || !out[0].Timestamp.Equal(in[0].Timestamp) {
		t.Fatalf("out=%+v", out)
	}
	got := out[0]
	got.Timestamp = in[0].Timestamp
	if got != in[0] {
		t.Fatalf("got=%+v want %+v", got, in[0])
	}
}

func TestReadCSV_ShortRecord(t *testing.T) {
	t.Parallel()

	if _, err := readCSV(strings.NewReader("2024-01-01T00:00:00Z,r,1\n")); err == nil {
		t.Fatal("expected error")
	}
}
