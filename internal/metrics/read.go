package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadCSV loads samples written by WriteCSV or AppendCSV.
func ReadCSV(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []Sample
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && len(rec) > 0 && rec[0] == header[0] {
			continue
		}
		s, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
}

// fields parses numeric columns and keeps the first error.
type fields struct {
	rec []string
	err error
}

func (f *fields) uint(col, bits int) uint64 {
	if f.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(f.rec[col], 10, bits)
	if err != nil {
		f.err = fmt.Errorf("%s: %w", header[col], err)
	}
	return v
}

func parseRecord(rec []string) (Sample, error) {
	if len(rec) < len(header) {
		return Sample{}, fmt.Errorf("want %d columns, got %d", len(header), len(rec))
	}
	ts, err := time.Parse(time.RFC3339Nano, rec[0])
	if err != nil {
		return Sample{}, fmt.Errorf("timestamp: %w", err)
	}
	f := fields{rec: rec}
	s := Sample{
		Timestamp: ts,
		RunID:     rec[1],
		SenderID:  uint8(f.uint(2, 8)),
		State:     rec[3],
		LastSeq:   uint16(f.uint(4, 16)),
		MissedSeq: uint32(f.uint(5, 32)),
		Received:  f.uint(6, 64),
		Pings:     f.uint(7, 64),
		Ramp:      uint16(f.uint(8, 16)),
		Motion:    uint16(f.uint(9, 16)),
	}
	return s, f.err
}
