package radio

import (
	"errors"
	"testing"

	"meshlink/internal/identity"
)

type flakyRadio struct {
	fails int
	sends int
}

func (f *flakyRadio) LocalAddr() identity.PhysicalAddress { return identity.PhysicalAddress{} }
func (f *flakyRadio) Recv() (Frame, bool)                 { return Frame{}, false }
func (f *flakyRadio) AddPeer(identity.PhysicalAddress) error {
	return nil
}
func (f *flakyRadio) Close() error { return nil }

func (f *flakyRadio) Send(dst identity.PhysicalAddress, _ []byte) error {
	f.sends++
	if f.sends <= f.fails {
		return SendError(dst, ErrUnreachable)
	}
	return nil
}

func TestSendError(t *testing.T) {
	t.Parallel()

	dst := identity.PhysicalAddress{1, 2, 3, 4, 5, 6}
	err := SendError(dst, ErrUnreachable)
	if !errors.Is(err, ErrSendFailed) || !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err=%v", err)
	}
	var re *Error
	if !errors.As(err, &re) || re.Op != "send" || re.Addr != dst {
		t.Fatalf("radio error=%+v", re)
	}
	if SendError(dst, nil) != nil {
		t.Fatalf("nil wrapped")
	}
}

func TestSendAll(t *testing.T) {
	t.Parallel()

	r := &flakyRadio{fails: 2}
	if err := SendAll(r, identity.Broadcast, []byte{1}, 3); err != nil {
		t.Fatalf("SendAll: %v", err)
	}
	if r.sends != 3 {
		t.Fatalf("sends=%d", r.sends)
	}

	r = &flakyRadio{fails: 5}
	if err := SendAll(r, identity.Broadcast, []byte{1}, 3); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("err=%v", err)
	}
	if r.sends != 3 {
		t.Fatalf("sends=%d", r.sends)
	}
}
