// Package packet frames the two fixed-size datagrams exchanged on the mesh.
//
// Identity (22 bytes):  virtual(16, NUL padded) | physical(6)
// Telemetry (24 bytes): dest(16, NUL padded) | sender id(1) | kind(1) |
//
//	ramp(2) | motion(2) | seq(2), all integers big-endian
//
// Decode tells the two apart by length alone.
package packet

import (
	"fmt"

	"meshlink/internal/identity"
)

const (
	IdentitySize  = identity.VirtualAddressSize + identity.PhysicalAddressSize
	TelemetrySize = identity.VirtualAddressSize + 8

	// MaxDatagram is the largest payload the radio carries.
	MaxDatagram = 250
)

// Kind tags a telemetry packet.
type Kind uint8

const (
	KindData      Kind = 0xA1
	KindHeartbeat Kind = 0xB1
	KindPing      Kind = 0xC1
	KindPong      Kind = 0xC2
)

func (k Kind) Valid() bool {
	switch k {
	case KindData, KindHeartbeat, KindPing, KindPong:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindHeartbeat:
		return "heartbeat"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	}
	return fmt.Sprintf("kind(0x%02X)", uint8(k))
}

// Packet is either an Identity or a Telemetry.
type Packet interface {
	isPacket()
}

// Identity announces the binding between a virtual and a physical address.
type Identity struct {
	Virtual  identity.VirtualAddress
	Physical identity.PhysicalAddress
}

// Telemetry carries sensor state or a liveness control message.
type Telemetry struct {
	Dest     identity.VirtualAddress
	SenderID uint8
	Kind     Kind
	Ramp     uint16
	Motion   uint16
	Seq      uint16
}

func (Identity) isPacket()  {}
func (Telemetry) isPacket() {}

// SeqGap returns the forward distance from prev to next on the u16 ring.
// A gap of 1 means no loss; 0 means a duplicate.
func SeqGap(prev, next uint16) uint16 {
	return next - prev
}
