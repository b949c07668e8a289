// Package peers maps virtual addresses to physical radio addresses.
package peers

import (
	"fmt"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pion/logging"

	"meshlink/internal/identity"
	"meshlink/internal/packet"
)

// DefaultSize bounds the table when no size is configured.
const DefaultSize = 64

// Hop is the distance to the well-known Receiver: Known(n) or Unknown.
type Hop struct {
	N     uint16
	Known bool
}

// Unknown is the hop of every freshly learned peer.
var Unknown = Hop{}

// Known returns a known hop count.
func Known(n uint16) Hop { return Hop{N: n, Known: true} }

func (h Hop) String() string {
	if !h.Known {
		return "unknown"
	}
	return strconv.Itoa(int(h.N))
}

// Record is one resolved peer.
type Record struct {
	Virtual  identity.VirtualAddress
	Physical identity.PhysicalAddress
	Role     identity.Role
	Hop      Hop
}

// Table is the address resolution table. Least recently observed entries
// are evicted once the table is full.
type Table struct {
	receiver identity.VirtualAddress
	cache    *lru.Cache[identity.VirtualAddress, Record]
	log      logging.LeveledLogger
}

// New builds a table that treats receiver as the well-known Receiver.
func New(receiver identity.VirtualAddress, size int, log logging.LeveledLogger) (*Table, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[identity.VirtualAddress, Record](size)
	if err != nil {
		return nil, fmt.Errorf("peer table: %w", err)
	}
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("peers")
	}
	return &Table{receiver: receiver, cache: cache, log: log}, nil
}

// Receiver returns the configured well-known Receiver address.
func (t *Table) Receiver() identity.VirtualAddress { return t.receiver }

// Observe inserts or refreshes a peer from an Identity packet.
func (t *Table) Observe(p packet.Identity) Record {
	rec, ok := t.cache.Peek(p.Virtual)
	if !ok {
		rec = Record{Virtual: p.Virtual, Hop: Unknown}
		t.log.Debugf("new peer %s at %s", p.Virtual, p.Physical)
	} else if rec.Physical != p.Physical {
		t.log.Infof("peer %s moved %s -> %s", p.Virtual, rec.Physical, p.Physical)
	}
	rec.Physical = p.Physical
	rec.Role = p.Virtual.Role()
	if p.Virtual == t.receiver {
		rec.Role = identity.RoleReceiver
		rec.Hop = Known(0)
	}
	if evicted := t.cache.Add(p.Virtual, rec); evicted {
		t.log.Debug("peer table full, evicted least recently seen entry")
	}
	return rec
}

// Resolve returns the physical address of a virtual address.
func (t *Table) Resolve(v identity.VirtualAddress) (identity.PhysicalAddress, bool) {
	rec, ok := t.cache.Peek(v)
	return rec.Physical, ok
}

// Lookup returns the full record.
func (t *Table) Lookup(v identity.VirtualAddress) (Record, bool) {
	return t.cache.Peek(v)
}

// BestRelay picks the Relay with the smallest known hop.
func (t *Table) BestRelay() (identity.PhysicalAddress, bool) {
	var (
		best  Record
		found bool
	)
	for _, rec := range t.cache.Values() {
		if rec.Role != identity.RoleRelay || !rec.Hop.Known {
			continue
		}
		if !found || rec.Hop.N < best.Hop.N {
			best, found = rec, true
		}
	}
	return best.Physical, found
}

// ReceiverRoute reports the Receiver's physical address when it is one hop away.
func (t *Table) ReceiverRoute() (identity.PhysicalAddress, bool) {
	rec, ok := t.cache.Peek(t.receiver)
	if !ok || rec.Hop != Known(0) {
		return identity.PhysicalAddress{}, false
	}
	return rec.Physical, true
}

// Len returns the number of resolved peers.
func (t *Table) Len() int { return t.cache.Len() }

// Snapshot lists all records sorted by virtual address.
func (t *Table) Snapshot() []Record {
	out := t.cache.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].Virtual < out[j].Virtual })
	return out
}
