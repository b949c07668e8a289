// Package udp emulates the radio on a host network. Unicast is a UDP
// datagram to the peer's socket; the physical address is its IPv4 address
// and port. Broadcast is sent to a multicast group every node joins.
package udp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
	"github.com/pion/stun/v3"
	"golang.org/x/net/ipv4"

	"meshlink/internal/addrutil"
	"meshlink/internal/identity"
	"meshlink/internal/radio"
)

const (
	DefaultListen = "0.0.0.0:47000"
	DefaultGroup  = "239.77.77.77:47001"
	DefaultInbox  = 256
)

type Config struct {
	Listen    string
	Group     string
	Interface string
	// Advertise overrides the host announced as this node's physical address.
	Advertise   string
	STUNServers []string
	Inbox       int
}

// Radio implements radio.Radio and radio.Notifier over UDP.
type Radio struct {
	cfg   Config
	log   logging.LeveledLogger
	conn  *net.UDPConn
	mconn *ipv4.PacketConn
	mraw  net.PacketConn
	group *net.UDPAddr
	port  int

	local    atomic.Value // identity.PhysicalAddress
	localIPs map[string]bool

	inbox   chan radio.Frame
	dropped atomic.Uint64

	mu         sync.Mutex
	handler    func(radio.Frame)
	stunWriter io.Writer
	peers      map[identity.PhysicalAddress]bool

	// deliverMu serializes handler calls from the unicast and group readers.
	deliverMu sync.Mutex

	closeOnce sync.Once
	wg        sync.WaitGroup
}

var (
	_ radio.Radio    = (*Radio)(nil)
	_ radio.Notifier = (*Radio)(nil)
)

// Open binds the unicast socket, joins the broadcast group and starts the
// read loops.
func Open(cfg Config, log logging.LeveledLogger) (*Radio, error) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Inbox <= 0 {
		cfg.Inbox = DefaultInbox
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("radio")
	}

	laddr, err := net.ResolveUDPAddr("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen %q: %w", cfg.Listen, err)
	}
	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", cfg.Group, err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("group %s is not a multicast address", group)
	}
	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", cfg.Interface, err)
		}
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", laddr, err)
	}
	// Broadcasts leave through the unicast socket so receivers see its address.
	uc := ipv4.NewPacketConn(conn)
	_ = uc.SetMulticastLoopback(true)
	_ = uc.SetMulticastTTL(1)
	if ifi != nil {
		if err := uc.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, fmt.Errorf("multicast interface %s: %w", ifi.Name, err)
		}
	}

	// Binding the group address lets several nodes share the port on one host.
	mraw, err := net.ListenPacket("udp4", group.String())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("listen group port %d: %w", group.Port, err)
	}
	mconn := ipv4.NewPacketConn(mraw)
	if err := mconn.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
		conn.Close()
		mraw.Close()
		return nil, fmt.Errorf("join group %s: %w", group.IP, err)
	}

	r := &Radio{
		cfg:      cfg,
		log:      log,
		conn:     conn,
		mconn:    mconn,
		mraw:     mraw,
		group:    group,
		port:     conn.LocalAddr().(*net.UDPAddr).Port,
		localIPs: localIPs(),
		inbox:    make(chan radio.Frame, cfg.Inbox),
		peers:    make(map[identity.PhysicalAddress]bool),
	}
	if err := r.setLocal(cfg.Advertise, laddr.IP); err != nil {
		r.Close()
		return nil, err
	}

	r.wg.Add(2)
	go r.readUnicast()
	go r.readGroup()
	log.Infof("udp radio %s (listen %s, group %s)", r.LocalAddr(), conn.LocalAddr(), group)
	return r, nil
}

func (r *Radio) setLocal(advertise string, listenIP net.IP) error {
	fallback := advertise
	if fallback == "" {
		if listenIP != nil && !listenIP.IsUnspecified() {
			fallback = listenIP.String()
		} else {
			fallback = outboundIP()
		}
	}
	hostport, ok := addrutil.AdvertiseAddr("", fallback, r.port)
	if !ok {
		return fmt.Errorf("no address to advertise")
	}
	p, err := addrutil.ResolvePhysical(hostport)
	if err != nil {
		return fmt.Errorf("advertise %s: %w", hostport, err)
	}
	r.local.Store(p)
	return nil
}

func (r *Radio) LocalAddr() identity.PhysicalAddress {
	p, _ := r.local.Load().(identity.PhysicalAddress)
	return p
}

func (r *Radio) Send(dst identity.PhysicalAddress, payload []byte) error {
	if len(payload) > radio.MaxPayload {
		return radio.SendError(dst, radio.ErrTooLarge)
	}
	to := r.group
	if !dst.IsBroadcast() {
		to = addrutil.UDPAddr(dst)
	}
	if _, err := r.conn.WriteToUDP(payload, to); err != nil {
		if errors.Is(err, net.ErrClosed) {
			err = radio.ErrClosed
		}
		return radio.SendError(dst, err)
	}
	return nil
}

func (r *Radio) Recv() (radio.Frame, bool) {
	select {
	case f := <-r.inbox:
		return f, true
	default:
		return radio.Frame{}, false
	}
}

// AddPeer only records the peer; UDP needs no registration.
func (r *Radio) AddPeer(addr identity.PhysicalAddress) error {
	if addr.IsBroadcast() || addr.IsZero() {
		return &radio.Error{Op: "add_peer", Addr: addr, Err: radio.ErrAddPeer}
	}
	r.mu.Lock()
	r.peers[addr] = true
	r.mu.Unlock()
	return nil
}

func (r *Radio) OnReceive(fn func(radio.Frame)) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

// Dropped counts frames lost to a full inbox.
func (r *Radio) Dropped() uint64 { return r.dropped.Load() }

func (r *Radio) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
		if merr := r.mraw.Close(); err == nil {
			err = merr
		}
		r.wg.Wait()
	})
	return err
}

func (r *Radio) readUnicast() {
	defer r.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if stun.IsMessage(buf[:n]) {
			r.mu.Lock()
			w := r.stunWriter
			r.mu.Unlock()
			if w != nil {
				_, _ = w.Write(buf[:n])
			}
			continue
		}
		r.dispatch(addr, buf[:n])
	}
}

func (r *Radio) readGroup() {
	defer r.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, _, src, err := r.mconn.ReadFrom(buf)
		if err != nil {
			return
		}
		addr, ok := src.(*net.UDPAddr)
		if !ok || r.isSelf(addr) {
			continue
		}
		r.dispatch(addr, buf[:n])
	}
}

func (r *Radio) isSelf(addr *net.UDPAddr) bool {
	return addr.Port == r.port && r.localIPs[addr.IP.String()]
}

func (r *Radio) dispatch(addr *net.UDPAddr, b []byte) {
	if len(b) > radio.MaxPayload {
		return
	}
	src, err := addrutil.Physical(addr)
	if err != nil {
		return
	}
	f := radio.Frame{Src: src, Payload: append([]byte(nil), b...)}
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		r.deliverMu.Lock()
		h(f)
		r.deliverMu.Unlock()
		return
	}
	select {
	case r.inbox <- f:
	default:
		r.dropped.Add(1)
	}
}

func localIPs() map[string]bool {
	out := map[string]bool{"127.0.0.1": true}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
			out[ipn.IP.String()] = true
		}
	}
	return out
}

// outboundIP returns the address the host would use to reach the
// multicast group, falling back to loopback.
func outboundIP() string {
	c, err := net.Dial("udp4", "239.77.77.77:9")
	if err != nil {
		return "127.0.0.1"
	}
	defer c.Close()
	if a, ok := c.LocalAddr().(*net.UDPAddr); ok && !a.IP.IsUnspecified() {
		return a.IP.String()
	}
	return "127.0.0.1"
}
