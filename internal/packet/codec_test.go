package packet

import (
	"bytes"
	"errors"
	"testing"

	"meshlink/internal/identity"
)

func TestEncodeTelemetry_Layout(t *testing.T) {
	t.Parallel()

	got := EncodeTelemetry(Telemetry{
		Dest:     identity.DefaultReceiver,
		SenderID: 10,
		Kind:     KindData,
		Ramp:     1,
		Motion:   2,
		Seq:      7,
	})
	want := append([]byte("AC:DB:02:01:01\x00\x00"), 0x0A, 0xA1, 0x00, 0x01, 0x00, 0x02, 0x00, 0x07)
	if !bytes.Equal(got, want) {
		t.Fatalf("got=% x\nwant=% x", got, want)
	}
}

func TestEncodeIdentity_Layout(t *testing.T) {
	t.Parallel()

	phys := identity.PhysicalAddress{0x24, 0x6f, 0x28, 0x01, 0x02, 0x03}
	got := EncodeIdentity(Identity{Virtual: "AC:DB:00:0A:0A", Physical: phys})
	if len(got) != IdentitySize {
		t.Fatalf("len=%d", len(got))
	}
	if !bytes.Equal(got[16:], phys[:]) {
		t.Fatalf("physical=% x", got[16:])
	}
	if got[14] != 0 || got[15] != 0 {
		t.Fatalf("padding=% x", got[14:16])
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Packet{
		Identity{Virtual: "AC:DB:01:03:03", Physical: identity.PhysicalAddress{1, 2, 3, 4, 5, 6}},
		Identity{Virtual: "0123456789ABCDEF", Physical: identity.Broadcast},
		Telemetry{Dest: identity.DefaultReceiver, SenderID: 3, Kind: KindHeartbeat, Ramp: 0, Motion: 1, Seq: 65535},
		Telemetry{Dest: "AC:DB:00:0F:0F", SenderID: 1, Kind: KindPing},
		Telemetry{Dest: identity.DefaultReceiver, SenderID: 15, Kind: KindPong, Ramp: 2, Motion: 2, Seq: 1},
	}
	for _, p := range cases {
		b, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", p, err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode(%+v): %v", p, err)
		}
		if got != p {
			t.Fatalf("round trip: got=%+v want=%+v", got, p)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrUnexpectedLength},
		{"short", make([]byte, 21), ErrUnexpectedLength},
		{"between", make([]byte, 23), ErrUnexpectedLength},
		{"long", make([]byte, 25), ErrUnexpectedLength},
		{"kind zero", make([]byte, TelemetrySize), ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_UnknownKindValue(t *testing.T) {
	t.Parallel()

	b := EncodeTelemetry(Telemetry{Dest: identity.DefaultReceiver, Kind: KindData})
	b[17] = 0xD0
	if _, err := Decode(b); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v", err)
	}
}

func TestSeqGap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prev, next, want uint16
	}{
		{1, 2, 1},
		{7, 7, 0},
		{1, 5, 4},
		{65535, 0, 1},
		{65534, 2, 4},
	}
	for _, tt := range tests {
		if got := SeqGap(tt.prev, tt.next); got != tt.want {
			t.Fatalf("SeqGap(%d,%d)=%d want %d", tt.prev, tt.next, got, tt.want)
		}
	}
}

func FuzzDecode(f *testing.F) {
	f.Add(EncodeTelemetry(Telemetry{Dest: identity.DefaultReceiver, Kind: KindData}))
	f.Add(EncodeIdentity(Identity{Virtual: "AC:DB:00:01:01"}))
	f.Add([]byte{0xA1})
	f.Fuzz(func(t *testing.T, b []byte) {
		p, err := Decode(b)
		if err != nil {
			return
		}
		out, err := Encode(p)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if len(out) != len(b) {
			t.Fatalf("len=%d want %d", len(out), len(b))
		}
	})
}
