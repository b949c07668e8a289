package udp

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"

	"meshlink/internal/addrutil"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// DiscoverPublic asks the configured STUN servers for the radio socket's
// mapped address over the radio socket itself, then advertises that host
// with the local port. It returns the first mapped address and the NAT
// classification.
func (r *Radio) DiscoverPublic(ctx context.Context, timeout time.Duration) (string, string, error) {
	if len(r.cfg.STUNServers) == 0 {
		return "", NATTypeUnknown, fmt.Errorf("no STUN servers provided")
	}

	results := make([]string, 0, len(r.cfg.STUNServers))
	var lastErr error
	for _, server := range r.cfg.STUNServers {
		addr, err := r.probeSTUN(ctx, server, timeout)
		if err != nil {
			r.log.Debugf("stun %s: %v", server, err)
			lastErr = err
			continue
		}
		results = append(results, addr)
	}
	if len(results) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return "", NATTypeUnknown, lastErr
	}

	hostport, ok := addrutil.AdvertiseAddr(results[0], "", r.port)
	if ok {
		if p, err := addrutil.ResolvePhysical(hostport); err == nil {
			r.local.Store(p)
		}
	}
	nat := Classify(results)
	r.log.Infof("public address %s (nat=%s), advertising %s", results[0], nat, r.LocalAddr())
	return results[0], nat, nil
}

// Classify infers the NAT type by comparing mapped addresses from several
// servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	for _, addr := range addrs[1:] {
		if addr != addrs[0] {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}
func stunTarget(server string) (*net.UDPAddr, error) {
	host := strings.TrimPrefix(strings.TrimSpace(server), "stun:")
	if host == "" {
		return nil, fmt.Errorf("empty STUN server")
	}
	return net.ResolveUDPAddr("udp4", host)
}

// claimSTUN routes inbound STUN datagrams into w until the returned release
// func runs. Only one probe owns the socket at a time.
func (r *Radio) claimSTUN(w net.Conn) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stunWriter != nil {
		return nil, fmt.Errorf("stun probe already in progress")
	}
	r.stunWriter = w
	return func() {
		r.mu.Lock()
		r.stunWriter = nil
		r.mu.Unlock()
	}, nil
}

// relaySTUN copies requests written by the STUN client out of the radio
// socket to the server.
func (r *Radio) relaySTUN(local net.Conn, to *net.UDPAddr, errc chan<- error) {
	buf := make([]byte, 1500)
	for {
		n, err := local.Read(buf)
		if err == nil {
			_, err = r.conn.WriteToUDP(buf[:n], to)
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (r *Radio) probeSTUN(ctx context.Context, server string, timeout time.Duration) (string, error) {
	to, err := stunTarget(server)
	if err != nil {
		return "", err
	}

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	client, err := stun.NewClient(remote, stun.WithNoConnClose())
	if err != nil {
		return "", err
	}
	defer client.Close()

	release, err := r.claimSTUN(local)
	if err != nil {
		return "", err
	}
	defer release()

	pumpErr := make(chan error, 1)
	go r.relaySTUN(local, to, pumpErr)

	var mapped stun.XORMappedAddress
	doneErr := make(chan error, 1)
	go func() {
		req := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
		doneErr <- client.Do(req, func(ev stun.Event) {
			if ev.Error == nil {
				_ = mapped.GetFrom(ev.Message)
			}
		})
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case err := <-doneErr:
		switch {
		case err != nil:
			return "", err
		case mapped.IP == nil:
			return "", fmt.Errorf("stun response missing mapped address")
		}
		return mapped.String(), nil
	case err := <-pumpErr:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
