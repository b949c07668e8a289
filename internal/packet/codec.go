package packet

import (
	"encoding/binary"
	"fmt"

	"meshlink/internal/identity"
)

// EncodeIdentity returns the 22-byte wire form. Virtual addresses longer than
// 16 bytes are truncated.
func EncodeIdentity(p Identity) []byte {
	out := make([]byte, IdentitySize)
	v := p.Virtual.Bytes()
	copy(out, v[:])
	copy(out[identity.VirtualAddressSize:], p.Physical[:])
	return out
}

// EncodeTelemetry returns the 24-byte wire form.
func EncodeTelemetry(p Telemetry) []byte {
	out := make([]byte, TelemetrySize)
	d := p.Dest.Bytes()
	copy(out, d[:])
	b := out[identity.VirtualAddressSize:]
	b[0] = p.SenderID
	b[1] = byte(p.Kind)
	binary.BigEndian.PutUint16(b[2:4], p.Ramp)
	binary.BigEndian.PutUint16(b[4:6], p.Motion)
	binary.BigEndian.PutUint16(b[6:8], p.Seq)
	return out
}

// Encode dispatches on the concrete packet type.
func Encode(p Packet) ([]byte, error) {
	switch v := p.(type) {
	case Identity:
		return EncodeIdentity(v), nil
	case *Identity:
		return EncodeIdentity(*v), nil
	case Telemetry:
		return EncodeTelemetry(v), nil
	case *Telemetry:
		return EncodeTelemetry(*v), nil
	}
	return nil, fmt.Errorf("encode: unsupported packet %T", p)
}

// Decode parses a datagram. It never panics on arbitrary input.
func Decode(b []byte) (Packet, error) {
	switch len(b) {
	case IdentitySize:
		var p Identity
		p.Virtual = identity.VirtualFromBytes(b[:identity.VirtualAddressSize])
		copy(p.Physical[:], b[identity.VirtualAddressSize:])
		return p, nil
	case TelemetrySize:
		body := b[identity.VirtualAddressSize:]
		kind := Kind(body[1])
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownKind, body[1])
		}
		return Telemetry{
			Dest:     identity.VirtualFromBytes(b[:identity.VirtualAddressSize]),
			SenderID: body[0],
			Kind:     kind,
			Ramp:     binary.BigEndian.Uint16(body[2:4]),
			Motion:   binary.BigEndian.Uint16(body[4:6]),
			Seq:      binary.BigEndian.Uint16(body[6:8]),
		}, nil
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrUnexpectedLength, len(b))
}
