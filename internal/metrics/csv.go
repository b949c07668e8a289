package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var header = []string{
	"timestamp",
	"run_id",
	"sender_id",
	"state",
	"last_seq",
	"missed_seq",
	"received",
	"pings",
	"ramp",
	"motion",
}

// WriteCSV writes samples to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []Sample) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	return writeRows(writer, items)
}

// AppendCSV appends samples to path, writing the header only when the file
// is new or empty.
func AppendCSV(path string, items []Sample) error {
	if len(items) == 0 {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	return writeRows(writer, items)
}

func writeRows(writer *csv.Writer, items []Sample) error {
	for _, m := range items {
		record := []string{
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			m.RunID,
			strconv.Itoa(int(m.SenderID)),
			m.State,
			strconv.Itoa(int(m.LastSeq)),
			strconv.FormatUint(uint64(m.MissedSeq), 10),
			strconv.FormatUint(m.Received, 10),
			strconv.FormatUint(m.Pings, 10),
			strconv.Itoa(int(m.Ramp)),
			strconv.Itoa(int(m.Motion)),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
