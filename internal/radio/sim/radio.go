package sim

import (
	"sync"

	"meshlink/internal/identity"
	"meshlink/internal/radio"
)

// Radio is one simulated transceiver. It implements radio.Radio and
// radio.Notifier.
type Radio struct {
	medium *Medium
	addr   identity.PhysicalAddress

	mu       sync.Mutex
	inbox    []radio.Frame
	inboxCap int
	dropped  uint64
	handler  func(radio.Frame)
	peers    map[identity.PhysicalAddress]bool
	closed   bool

	// deliverMu serializes handler calls from concurrent senders.
	deliverMu sync.Mutex
}

var (
	_ radio.Radio    = (*Radio)(nil)
	_ radio.Notifier = (*Radio)(nil)
)

func (r *Radio) LocalAddr() identity.PhysicalAddress { return r.addr }

func (r *Radio) Send(dst identity.PhysicalAddress, payload []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return radio.SendError(dst, radio.ErrClosed)
	}
	return r.medium.send(r.addr, dst, payload)
}

func (r *Radio) Recv() (radio.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inbox) == 0 {
		return radio.Frame{}, false
	}
	f := r.inbox[0]
	r.inbox[0] = radio.Frame{}
	r.inbox = r.inbox[1:]
	return f, true
}

func (r *Radio) AddPeer(addr identity.PhysicalAddress) error {
	if addr.IsBroadcast() || addr.IsZero() {
		return &radio.Error{Op: "add_peer", Addr: addr, Err: radio.ErrAddPeer}
	}
	r.mu.Lock()
	r.peers[addr] = true
	r.mu.Unlock()
	return nil
}

// HasPeer reports whether addr was registered with AddPeer.
func (r *Radio) HasPeer(addr identity.PhysicalAddress) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[addr]
}

func (r *Radio) OnReceive(fn func(radio.Frame)) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

// Dropped counts frames lost to a full inbox.
func (r *Radio) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Pending returns the number of queued frames.
func (r *Radio) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inbox)
}

func (r *Radio) Close() error {
	r.mu.Lock()
	r.closed = true
	r.inbox = nil
	r.handler = nil
	r.mu.Unlock()
	return nil
}

func (r *Radio) deliver(f radio.Frame) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if h := r.handler; h != nil {
		r.mu.Unlock()
		r.deliverMu.Lock()
		h(f)
		r.deliverMu.Unlock()
		return
	}
	if len(r.inbox) >= r.inboxCap {
		r.dropped++
		r.mu.Unlock()
		return
	}
	r.inbox = append(r.inbox, f)
	r.mu.Unlock()
}
