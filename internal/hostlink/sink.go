package hostlink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaud matches the Receiver's USB serial console.
const DefaultBaud = 115200

// Sink consumes host events.
type Sink interface {
	Emit(events ...Event) error
}

// WriterSink writes one line per event.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

func (s *WriterSink) Emit(events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if _, err := fmt.Fprintln(s.w, Format(e)); err != nil {
			return fmt.Errorf("emit %s: %w", Format(e), err)
		}
	}
	return nil
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(events ...Event) error

func (f SinkFunc) Emit(events ...Event) error { return f(events...) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(...Event) error { return nil })

// OpenSerial opens a serial port in raw 8N1 at the given baud rate.
func OpenSerial(port string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", port, err)
	}
	return p, nil
}

// SerialPorts lists candidate ports for auto-detection.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Handler receives what Follow reads.
type Handler interface {
	// Line is called for every complete line, with err set when it does not parse.
	Line(line string, ev Event, err error)
	// Idle is called when a read returns no bytes (a serial read timeout).
	Idle()
}

// Follow reads newline-terminated lines from r until EOF, a read error, or
// ctx cancellation. Serial ports configured with a read timeout return zero
// bytes when quiet, which is reported to h as Idle.
func Follow(ctx context.Context, r io.Reader, h Handler) error {
	buf := make([]byte, 256)
	var pending []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n == 0 && err == nil {
			h.Idle()
			continue
		}
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimRight(string(pending[:i]), "\r")
			pending = pending[i+1:]
			ev, perr := Parse(line)
			h.Line(line, ev, perr)
		}
		if err == io.EOF {
			if len(pending) > 0 {
				ev, perr := Parse(string(pending))
				h.Line(string(pending), ev, perr)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ReadTimeouter is implemented by serial ports.
type ReadTimeouter interface {
	SetReadTimeout(t time.Duration) error
}
