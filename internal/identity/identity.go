package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Role is the part a device plays in the mesh.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleSender
	RoleRelay
	RoleReceiver
	RoleTelemetry
)

// MaxID is the largest device id the strap pins can encode.
const MaxID = 0x0F

// DefaultReceiver is the network-wide well-known Receiver address.
const DefaultReceiver VirtualAddress = "AC:DB:02:01:01"

var (
	ErrUnknownRole = errors.New("unknown device role")
	ErrInvalidID   = errors.New("device id out of range (valid range: 0-15)")
)

var rolePrefixes = map[Role]string{
	RoleSender:    "AC:DB:00",
	RoleRelay:     "AC:DB:01",
	RoleReceiver:  "AC:DB:02",
	RoleTelemetry: "AC:DB:03",
	RoleUnknown:   "AC:DB:FF",
}

var roleNames = map[Role]string{
	RoleSender:    "sender",
	RoleRelay:     "relay",
	RoleReceiver:  "receiver",
	RoleTelemetry: "telemetry",
	RoleUnknown:   "unknown",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

// Prefix returns the 3-byte virtual address prefix for the role.
func (r Role) Prefix() string {
	if p, ok := rolePrefixes[r]; ok {
		return p
	}
	return rolePrefixes[RoleUnknown]
}

// ParseRole maps a config name ("sender", "RELAY", ...) to a Role.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for role, n := range roleNames {
		if role != RoleUnknown && n == name {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Device is the role and numeric id a node was strapped with at boot.
type Device struct {
	Role Role
	ID   uint8
}

// Validate rejects identities no role loop can run with.
func (d Device) Validate() error {
	if d.Role == RoleUnknown {
		return ErrUnknownRole
	}
	if d.ID > MaxID {
		return fmt.Errorf("%w: %d", ErrInvalidID, d.ID)
	}
	return nil
}

// Virtual derives the device's virtual address, e.g. sender 10 -> AC:DB:00:0A:0A.
func (d Device) Virtual() VirtualAddress {
	return VirtualFor(d.Role, d.ID)
}

func (d Device) String() string {
	return fmt.Sprintf("%s/%d", d.Role, d.ID)
}

// VirtualFor builds the virtual address of any role/id pair.
func VirtualFor(role Role, id uint8) VirtualAddress {
	return VirtualAddress(fmt.Sprintf("%s:%02X:%02X", role.Prefix(), id, id))
}
