// Package sim is an in-memory radio medium for tests and the sim command.
package sim

import (
	"fmt"
	"sync"

	"meshlink/internal/identity"
	"meshlink/internal/radio"
)

// DefaultInbox bounds each radio's receive queue.
const DefaultInbox = 256

// Transmission is one Send recorded by the medium.
type Transmission struct {
	Src     identity.PhysicalAddress
	Dst     identity.PhysicalAddress
	Payload []byte
	Err     error
}

type link struct{ a, b identity.PhysicalAddress }

// Medium connects simulated radios. Until the first Link call every radio
// hears every other; afterwards only linked pairs hear each other.
type Medium struct {
	mu         sync.Mutex
	radios     map[identity.PhysicalAddress]*Radio
	order      []identity.PhysicalAddress
	links      map[link]bool
	restricted bool
	drop       func(src, dst identity.PhysicalAddress, payload []byte) bool
	log        []Transmission
}

func NewMedium() *Medium {
	return &Medium{
		radios: make(map[identity.PhysicalAddress]*Radio),
		links:  make(map[link]bool),
	}
}

// Attach creates a radio with the given address.
func (m *Medium) Attach(addr identity.PhysicalAddress) (*Radio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr.IsBroadcast() || addr.IsZero() {
		return nil, fmt.Errorf("sim: invalid radio address %s", addr)
	}
	if _, ok := m.radios[addr]; ok {
		return nil, fmt.Errorf("sim: address %s already attached", addr)
	}
	r := &Radio{medium: m, addr: addr, peers: make(map[identity.PhysicalAddress]bool), inboxCap: DefaultInbox}
	m.radios[addr] = r
	m.order = append(m.order, addr)
	return r, nil
}

// Link makes a and b hear each other.
func (m *Medium) Link(a, b identity.PhysicalAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restricted = true
	m.links[link{a, b}] = true
	m.links[link{b, a}] = true
}

// Unlink removes the link between a and b.
func (m *Medium) Unlink(a, b identity.PhysicalAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restricted = true
	delete(m.links, link{a, b})
	delete(m.links, link{b, a})
}

// SetDrop installs a loss function; returning true drops the delivery.
func (m *Medium) SetDrop(fn func(src, dst identity.PhysicalAddress, payload []byte) bool) {
	m.mu.Lock()
	m.drop = fn
	m.mu.Unlock()
}

// Transmissions returns every Send so far.
func (m *Medium) Transmissions() []Transmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transmission(nil), m.log...)
}

func (m *Medium) reachable(src, dst identity.PhysicalAddress) bool {
	return !m.restricted || m.links[link{src, dst}]
}

func (m *Medium) send(src, dst identity.PhysicalAddress, payload []byte) error {
	m.mu.Lock()
	var (
		targets []*Radio
		err     error
	)
	switch {
	case len(payload) > radio.MaxPayload:
		err = radio.SendError(dst, radio.ErrTooLarge)
	case dst.IsBroadcast():
		for _, addr := range m.order {
			if addr != src && m.reachable(src, addr) {
				targets = append(targets, m.radios[addr])
			}
		}
	default:
		r, ok := m.radios[dst]
		if !ok || !m.reachable(src, dst) {
			err = radio.SendError(dst, radio.ErrUnreachable)
		} else {
			targets = append(targets, r)
		}
	}
	m.log = append(m.log, Transmission{Src: src, Dst: dst, Payload: append([]byte(nil), payload...), Err: err})
	drop := m.drop
	m.mu.Unlock()

	for _, r := range targets {
		if drop != nil && drop(src, r.addr, payload) {
			continue
		}
		r.deliver(radio.Frame{Src: src, Payload: append([]byte(nil), payload...)})
	}
	return err
}
