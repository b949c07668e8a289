package identity

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// VirtualAddressSize is the on-air width of a virtual address field.
const VirtualAddressSize = 16

// VirtualAddress is the stable, human-readable address of a device
// (PREFIX:ID:ID). On air it is NUL-padded to 16 bytes.
type VirtualAddress string

// Bytes returns the NUL-padded wire form. Longer addresses are truncated.
func (v VirtualAddress) Bytes() [VirtualAddressSize]byte {
	var out [VirtualAddressSize]byte
	copy(out[:], v)
	return out
}

// Valid reports whether the address survives a wire round trip unchanged.
func (v VirtualAddress) Valid() bool {
	return len(v) > 0 && len(v) <= VirtualAddressSize && !strings.ContainsRune(string(v), 0)
}

// Role infers the role from the address prefix.
func (v VirtualAddress) Role() Role {
	s := string(v)
	for _, role := range []Role{RoleSender, RoleRelay, RoleReceiver, RoleTelemetry} {
		if strings.HasPrefix(s, role.Prefix()+":") {
			return role
		}
	}
	return RoleUnknown
}

// ID parses the trailing hex id field. ok is false for malformed addresses.
func (v VirtualAddress) ID() (uint8, bool) {
	s := string(v)
	i := strings.LastIndexByte(s, ':')
	if i < 0 || i == len(s)-1 {
		return 0, false
	}
	n, err := strconv.ParseUint(s[i+1:], 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

// VirtualFromBytes decodes a wire field, trimming NUL padding.
func VirtualFromBytes(b []byte) VirtualAddress {
	return VirtualAddress(strings.TrimRight(string(b), "\x00"))
}

// PhysicalAddressSize is the width of a radio hardware address.
const PhysicalAddressSize = 6

// PhysicalAddress is the opaque 6-byte radio interface address.
type PhysicalAddress [PhysicalAddressSize]byte

// Broadcast reaches every device in radio range.
var Broadcast = PhysicalAddress{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (p PhysicalAddress) IsBroadcast() bool { return p == Broadcast }

func (p PhysicalAddress) IsZero() bool { return p == PhysicalAddress{} }

func (p PhysicalAddress) String() string {
	parts := make([]string, len(p))
	for i, b := range p {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// ParsePhysical parses "aa:bb:cc:dd:ee:ff" (":" or "-" separated, or bare hex).
func ParsePhysical(s string) (PhysicalAddress, error) {
	var out PhysicalAddress
	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return out, fmt.Errorf("parse physical address %q: %w", s, err)
	}
	if len(b) != PhysicalAddressSize {
		return out, fmt.Errorf("parse physical address %q: want %d bytes, got %d", s, PhysicalAddressSize, len(b))
	}
	copy(out[:], b)
	return out, nil
}
