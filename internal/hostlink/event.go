// Package hostlink carries the Receiver's newline-terminated line protocol
// to and from the host:
//
//	R,1                            receiver alive
//	O,<sid>,<0|1>                  sender offline/online
//	S,<sid>,<motion>,<ramp>,<seq>  sender state
package hostlink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedLine = errors.New("malformed host line")

// Type tags an Event.
type Type uint8

const (
	TypeReceiverAlive Type = iota + 1
	TypeOnline
	TypeState
)

// Event is one host protocol line.
type Event struct {
	Type     Type
	SenderID uint8
	Online   bool
	Motion   uint16
	Ramp     uint16
	Seq      uint16
}

func ReceiverAlive() Event { return Event{Type: TypeReceiverAlive} }

func Online(sid uint8, online bool) Event {
	return Event{Type: TypeOnline, SenderID: sid, Online: online}
}

func State(sid uint8, motion, ramp, seq uint16) Event {
	return Event{Type: TypeState, SenderID: sid, Motion: motion, Ramp: ramp, Seq: seq}
}

// Format renders the line without the trailing newline.
func Format(e Event) string {
	switch e.Type {
	case TypeReceiverAlive:
		return "R,1"
	case TypeOnline:
		v := 0
		if e.Online {
			v = 1
		}
		return fmt.Sprintf("O,%d,%d", e.SenderID, v)
	case TypeState:
		return fmt.Sprintf("S,%d,%d,%d,%d", e.SenderID, e.Motion, e.Ramp, e.Seq)
	}
	return ""
}

func (e Event) String() string { return Format(e) }

// Parse reads one line. Surrounding whitespace is ignored and a leading
// zero is accepted in place of the letter O.
func Parse(line string) (Event, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ",")
	bad := func() (Event, error) {
		return Event{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	switch fields[0] {
	case "R":
		if len(fields) != 2 || fields[1] != "1" {
			return bad()
		}
		return ReceiverAlive(), nil
	case "O", "0":
		if len(fields) != 3 {
			return bad()
		}
		sid, err := parseSID(fields[1])
		if err != nil {
			return bad()
		}
		switch fields[2] {
		case "0":
			return Online(sid, false), nil
		case "1":
			return Online(sid, true), nil
		}
		return bad()
	case "S":
		if len(fields) != 5 {
			return bad()
		}
		sid, err := parseSID(fields[1])
		if err != nil {
			return bad()
		}
		var vals [3]uint16
		for i := range vals {
			n, err := parseDigits(fields[2+i], 16)
			if err != nil {
				return bad()
			}
			vals[i] = uint16(n)
		}
		return State(sid, vals[0], vals[1], vals[2]), nil
	}
	return bad()
}

func parseSID(s string) (uint8, error) {
	n, err := parseDigits(s, 8)
	return uint8(n), err
}

// parseDigits rejects signs, which strconv would otherwise accept.
func parseDigits(s string, bits int) (uint64, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseUint(s, 10, bits)
}
