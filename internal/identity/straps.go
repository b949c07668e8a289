package identity

import (
	"fmt"
	"strings"
)

// Revision selects the strap-pin wiring of a board.
type Revision string

const (
	RevisionAuto   Revision = "auto"
	RevisionMKIV   Revision = "mkiv"
	RevisionLegacy Revision = "legacy"
)

// GPIO numbers used by the strap wiring.
const (
	PinMKIVFlag = 19
	PinRoleHigh = 18
	PinRoleLowM = 14 // MKIV role low bit
	PinRoleLowL = 19 // legacy role low bit
	PinIDA      = 17
	PinIDB      = 5
	PinIDC      = 4
	PinIDD      = 16
)

// PinReader reads the level of a pulled-down input pin.
type PinReader interface {
	Pin(gpio int) (bool, error)
}

// StaticPins is a PinReader backed by fixed levels (config or tests).
// Missing pins read low.
type StaticPins map[int]bool

func (s StaticPins) Pin(gpio int) (bool, error) { return s[gpio], nil }

var strapRoles = [4]Role{RoleSender, RoleRelay, RoleReceiver, RoleTelemetry}

// ParseRevision accepts "", "auto", "mkiv" and "legacy".
func ParseRevision(s string) (Revision, error) {
	switch Revision(strings.ToLower(strings.TrimSpace(s))) {
	case "", RevisionAuto:
		return RevisionAuto, nil
	case RevisionMKIV:
		return RevisionMKIV, nil
	case RevisionLegacy:
		return RevisionLegacy, nil
	}
	return "", fmt.Errorf("unknown hardware revision %q", s)
}

// DetectRevision reports MKIV when the flag pin is strapped high.
func DetectRevision(pins PinReader) (Revision, error) {
	high, err := pins.Pin(PinMKIVFlag)
	if err != nil {
		return "", err
	}
	if high {
		return RevisionMKIV, nil
	}
	return RevisionLegacy, nil
}

// DecodeStraps reads role and id from the board straps.
func DecodeStraps(rev Revision, pins PinReader) (Device, error) {
	if rev == RevisionAuto || rev == "" {
		detected, err := DetectRevision(pins)
		if err != nil {
			return Device{}, err
		}
		rev = detected
	}

	r := bitReader{pins: pins}
	var role, id uint8
	switch rev {
	case RevisionMKIV:
		role = r.bit(PinRoleHigh)<<1 | r.bit(PinRoleLowM)
		raw := r.bit(PinIDB)<<3 | r.bit(PinIDA)<<2 | r.bit(PinIDD)<<1 | r.bit(PinIDC)
		id = raw ^ 0x0F
	case RevisionLegacy:
		role = r.bit(PinRoleHigh)<<1 | r.bit(PinRoleLowL)
		id = r.bit(PinIDC) | r.bit(PinIDD)<<1 | r.bit(PinIDA)<<2 | r.bit(PinIDB)<<3
	default:
		return Device{}, fmt.Errorf("unknown hardware revision %q", rev)
	}
	if r.err != nil {
		return Device{}, fmt.Errorf("read straps: %w", r.err)
	}
	return Device{Role: strapRoles[role&0x03], ID: id}, nil
}

type bitReader struct {
	pins PinReader
	err  error
}

func (b *bitReader) bit(gpio int) uint8 {
	if b.err != nil {
		return 0
	}
	high, err := b.pins.Pin(gpio)
	if err != nil {
		b.err = err
		return 0
	}
	if high {
		return 1
	}
	return 0
}
