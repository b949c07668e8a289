package peers

import (
	"fmt"
	"testing"

	"meshlink/internal/identity"
	"meshlink/internal/packet"
)

func newTable(t *testing.T, size int) *Table {
	t.Helper()
	tbl, err := New(identity.DefaultReceiver, size, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tbl
}

func phys(b byte) identity.PhysicalAddress {
	return identity.PhysicalAddress{0x24, 0x6f, 0x28, 0, 0, b}
}

func TestObserve_NewPeerUnknownHop(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 0)
	rec := tbl.Observe(packet.Identity{Virtual: "AC:DB:01:03:03", Physical: phys(3)})
	if rec.Role != identity.RoleRelay || rec.Hop.Known {
		t.Fatalf("rec=%+v", rec)
	}
	got, ok := tbl.Resolve("AC:DB:01:03:03")
	if !ok || got != phys(3) {
		t.Fatalf("resolve=%s ok=%v", got, ok)
	}
	if _, ok := tbl.Resolve("AC:DB:01:04:04"); ok {
		t.Fatalf("resolved unseen peer")
	}
}

func TestObserve_UpdatesPhysical(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 0)
	tbl.Observe(packet.Identity{Virtual: "AC:DB:00:01:01", Physical: phys(1)})
	tbl.Observe(packet.Identity{Virtual: "AC:DB:00:01:01", Physical: phys(9)})
	got, _ := tbl.Resolve("AC:DB:00:01:01")
	if got != phys(9) || tbl.Len() != 1 {
		t.Fatalf("phys=%s len=%d", got, tbl.Len())
	}
}

func TestObserve_WellKnownReceiver(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 0)
	if _, ok := tbl.ReceiverRoute(); ok {
		t.Fatalf("route before identity")
	}
	rec := tbl.Observe(packet.Identity{Virtual: identity.DefaultReceiver, Physical: phys(0xAA)})
	if rec.Role != identity.RoleReceiver || rec.Hop != Known(0) {
		t.Fatalf("rec=%+v", rec)
	}
	got, ok := tbl.ReceiverRoute()
	if !ok || got != phys(0xAA) {
		t.Fatalf("route=%s ok=%v", got, ok)
	}

	// A second receiver that is not the configured one gets no special hop.
	other := tbl.Observe(packet.Identity{Virtual: "AC:DB:02:02:02", Physical: phys(0xAB)})
	if other.Role != identity.RoleReceiver || other.Hop.Known {
		t.Fatalf("other=%+v", other)
	}
}

func TestBestRelay(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 0)
	tbl.Observe(packet.Identity{Virtual: "AC:DB:01:01:01", Physical: phys(1)})
	if _, ok := tbl.BestRelay(); ok {
		t.Fatalf("relay with unknown hop selected")
	}
}

func TestBestRelay_SmallestKnownHop(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 0)
	tbl.cache.Add("AC:DB:01:01:01", Record{Virtual: "AC:DB:01:01:01", Physical: phys(1), Role: identity.RoleRelay, Hop: Known(3)})
	tbl.cache.Add("AC:DB:01:02:02", Record{Virtual: "AC:DB:01:02:02", Physical: phys(2), Role: identity.RoleRelay, Hop: Known(1)})
	tbl.cache.Add("AC:DB:01:03:03", Record{Virtual: "AC:DB:01:03:03", Physical: phys(3), Role: identity.RoleRelay, Hop: Unknown})
	tbl.cache.Add("AC:DB:00:04:04", Record{Virtual: "AC:DB:00:04:04", Physical: phys(4), Role: identity.RoleSender, Hop: Known(0)})
	got, ok := tbl.BestRelay()
	if !ok || got != phys(2) {
		t.Fatalf("best=%s ok=%v", got, ok)
	}
}

func TestEvictsLeastRecentlySeen(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 4)
	for i := 1; i <= 4; i++ {
		tbl.Observe(packet.Identity{Virtual: identity.VirtualFor(identity.RoleSender, uint8(i)), Physical: phys(byte(i))})
	}
	// Refresh sender 1 so sender 2 becomes the oldest.
	tbl.Observe(packet.Identity{Virtual: identity.VirtualFor(identity.RoleSender, 1), Physical: phys(1)})
	tbl.Observe(packet.Identity{Virtual: identity.VirtualFor(identity.RoleSender, 5), Physical: phys(5)})

	if tbl.Len() != 4 {
		t.Fatalf("len=%d", tbl.Len())
	}
	if _, ok := tbl.Resolve(identity.VirtualFor(identity.RoleSender, 2)); ok {
		t.Fatalf("sender 2 not evicted")
	}
	if _, ok := tbl.Resolve(identity.VirtualFor(identity.RoleSender, 1)); !ok {
		t.Fatalf("sender 1 evicted")
	}
}

func TestSnapshotSorted(t *testing.T) {
	t.Parallel()

	tbl := newTable(t, 0)
	for _, id := range []uint8{9, 2, 5} {
		tbl.Observe(packet.Identity{Virtual: identity.VirtualFor(identity.RoleSender, id), Physical: phys(id)})
	}
	snap := tbl.Snapshot()
	var got string
	for _, r := range snap {
		got += fmt.Sprintf("%s;", r.Virtual)
	}
	want := "AC:DB:00:02:02;AC:DB:00:05:05;AC:DB:00:09:09;"
	if got != want {
		t.Fatalf("snapshot=%s", got)
	}
}
