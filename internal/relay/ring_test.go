package relay

import (
	"runtime"
	"sync"
	"testing"

	"meshlink/internal/radio"
)

func frame(i int) radio.Frame {
	return radio.Frame{Payload: []byte{byte(i >> 8), byte(i)}}
}

func id(f radio.Frame) int { return int(f.Payload[0])<<8 | int(f.Payload[1]) }

func TestRing_BackPressureKeepsEarliest(t *testing.T) {
	t.Parallel()

	const c = 8
	r := NewRing(c)
	for i := 0; i < c+5; i++ {
		ok := r.Push(frame(i))
		if ok != (i < c) {
			t.Fatalf("push %d ok=%v", i, ok)
		}
	}
	if r.Len() != c || r.Dropped() != 5 {
		t.Fatalf("len=%d dropped=%d", r.Len(), r.Dropped())
	}
	for i := 0; i < c; i++ {
		f, ok := r.Pop()
		if !ok || id(f) != i {
			t.Fatalf("pop %d got=%d ok=%v", i, id(f), ok)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("pop from empty ring")
	}
}

func TestRing_DefaultCapacity(t *testing.T) {
	t.Parallel()

	if got := NewRing(0).Cap(); got != DefaultCapacity {
		t.Fatalf("cap=%d", got)
	}
}

func TestRing_Wraps(t *testing.T) {
	t.Parallel()

	// Two in flight on a ring of three, so indices wrap without drops.
	r := NewRing(3)
	next := 0
	for i := 0; i < 20; i += 2 {
		if !r.Push(frame(i)) || !r.Push(frame(i+1)) {
			t.Fatalf("push %d rejected with len=%d", i, r.Len())
		}
		for k := 0; k < 2; k++ {
			f, ok := r.Pop()
			if !ok || id(f) != next {
				t.Fatalf("got=%d ok=%v want %d", id(f), ok, next)
			}
			next++
		}
	}
	if r.Dropped() != 0 || r.Len() != 0 {
		t.Fatalf("dropped=%d len=%d", r.Dropped(), r.Len())
	}
}

func TestRing_WrapsWithDrops(t *testing.T) {
	t.Parallel()

	// Three pushes per pop: once full, each extra push is the one dropped.
	r := NewRing(3)
	var want []int
	for i := 0; i < 12; i++ {
		if r.Push(frame(i)) {
			want = append(want, i)
		}
		if i%3 == 2 {
			if _, ok := r.Pop(); !ok {
				t.Fatalf("pop after %d failed", i)
			}
			want = want[1:]
		}
	}
	for _, w := range want {
		f, ok := r.Pop()
		if !ok || id(f) != w {
			t.Fatalf("got=%d ok=%v want %d", id(f), ok, w)
		}
	}
	if r.Dropped() == 0 {
		t.Fatal("expected drops")
	}
}

func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	const n = 20000
	r := NewRing(16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.Push(frame(i)) {
				runtime.Gosched()
			}
		}
	}()

	got := 0
	for got < n {
		f, ok := r.Pop()
		if !ok {
			runtime.Gosched()
			continue
		}
		if id(f) != got&0xFFFF {
			t.Fatalf("out of order: got=%d want %d", id(f), got)
		}
		got++
	}
	wg.Wait()
}
