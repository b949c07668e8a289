// Package addrutil maps UDP endpoints onto 6-byte physical radio addresses
// (IPv4 address + port) for the host radio emulation.
package addrutil

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"meshlink/internal/identity"
)

// Physical packs an IPv4 UDP address into a physical address.
func Physical(addr *net.UDPAddr) (identity.PhysicalAddress, error) {
	var out identity.PhysicalAddress
	if addr == nil {
		return out, fmt.Errorf("nil udp address")
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return out, fmt.Errorf("udp address %s is not IPv4", addr)
	}
	if addr.Port <= 0 || addr.Port > 0xFFFF {
		return out, fmt.Errorf("udp address %s has no port", addr)
	}
	copy(out[:4], ip4)
	binary.BigEndian.PutUint16(out[4:], uint16(addr.Port))
	return out, nil
}

// UDPAddr unpacks a physical address.
func UDPAddr(p identity.PhysicalAddress) *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(p[0], p[1], p[2], p[3]),
		Port: int(binary.BigEndian.Uint16(p[4:])),
	}
}

// AdvertiseAddr picks the address a node announces in its Identity.
//
// The radio socket port is fixed (listenPort). A STUN-derived publicAddr
// usually carries an ephemeral NAT-mapped port, so only its host is used,
// joined with listenPort. fallback (a configured "host" or "host:port") is
// used when publicAddr is empty. IPv6 hosts are skipped: a physical address
// only holds an IPv4 address.
func AdvertiseAddr(publicAddr, fallback string, listenPort int) (string, bool) {
	if listenPort <= 0 || listenPort > 0xFFFF {
		return "", false
	}
	for _, candidate := range []string{publicAddr, fallback} {
		if host, ok := radioHost(candidate); ok {
			return net.JoinHostPort(host, strconv.Itoa(listenPort)), true
		}
	}
	return "", false
}

// radioHost strips an optional ":port" from an IPv4 address or hostname.
func radioHost(addr string) (string, bool) {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || strings.Contains(host, ":") {
		return "", false
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		return "", false
	}
	return host, true
}

// ResolvePhysical resolves "host:port" to a physical address.
func ResolvePhysical(hostport string) (identity.PhysicalAddress, error) {
	addr, err := net.ResolveUDPAddr("udp4", hostport)
	if err != nil {
		return identity.PhysicalAddress{}, err
	}
	return Physical(addr)
}
