// Package radio abstracts the connectionless broadcast/unicast datagram
// primitive the mesh runs on.
package radio

import (
	"errors"
	"fmt"

	"meshlink/internal/identity"
)

// MaxPayload is the largest datagram a radio accepts.
const MaxPayload = 250

var (
	ErrSendFailed  = errors.New("send failed")
	ErrAddPeer     = errors.New("add peer failed")
	ErrUnreachable = errors.New("destination unreachable")
	ErrTooLarge    = errors.New("payload too large")
	ErrClosed      = errors.New("radio closed")
)

// Frame is one received datagram and the physical address it came from.
type Frame struct {
	Src     identity.PhysicalAddress
	Payload []byte
}

// Radio sends and receives datagrams. Recv never blocks.
type Radio interface {
	LocalAddr() identity.PhysicalAddress
	Send(dst identity.PhysicalAddress, payload []byte) error
	Recv() (Frame, bool)
	// AddPeer registers a unicast destination. Registering twice is not an error.
	AddPeer(addr identity.PhysicalAddress) error
	Close() error
}

// Notifier is implemented by radios that can hand frames to a callback from
// their receive context instead of queueing them for Recv. The callback
// must not block. Calls are serialized: the callback never runs on two
// goroutines at once, so it may feed a single-producer queue.
type Notifier interface {
	OnReceive(fn func(Frame))
}

// Error describes a failed radio operation.
type Error struct {
	Op   string
	Addr identity.PhysicalAddress
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("radio %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SendError wraps err as a send failure to dst.
func SendError(dst identity.PhysicalAddress, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSendFailed) {
		err = fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return &Error{Op: "send", Addr: dst, Err: err}
}

// SendAll sends with up to attempts tries, returning the last error.
func SendAll(r Radio, dst identity.PhysicalAddress, payload []byte, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = r.Send(dst, payload); err == nil {
			return nil
		}
	}
	return err
}
