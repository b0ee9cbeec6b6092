//go:build !tinygo

package hal

import (
	"testing"
	"time"
)

func TestHostTimeStep(t *testing.T) {
	ht := newHostTime(10 * time.Millisecond)
	t0 := time.Unix(0, 0)

	if n := ht.step(t0); n != 1 {
		t.Fatalf("expected 1 tick on first step, got %d", n)
	}
	if n := ht.step(t0.Add(5 * time.Millisecond)); n != 0 {
		t.Fatalf("expected 0 ticks after half a period, got %d", n)
	}
	if n := ht.step(t0.Add(35 * time.Millisecond)); n != 3 {
		t.Fatalf("expected 3 ticks, got %d", n)
	}
	if n := ht.step(t0.Add(40 * time.Millisecond)); n != 1 {
		t.Fatalf("expected carry to complete a tick, got %d", n)
	}

	var last uint64
	for i := 0; i < 5; i++ {
		last = <-ht.Ticks()
	}
	if last != 5 {
		t.Fatalf("expected sequence 5, got %d", last)
	}
}

func TestSquareWave(t *testing.T) {
	w := newSquareWave(toneSampleRate/4, 100)
	buf := make([]byte, 4*4+3)
	n, err := w.Read(buf)
	if err != nil || n != 16 {
		t.Fatalf("expected 16 bytes, got %d (%v)", n, err)
	}
	want := []int16{100, 100, -100, -100}
	for i, s := range want {
		got := int16(uint16(buf[4*i]) | uint16(buf[4*i+1])<<8)
		right := int16(uint16(buf[4*i+2]) | uint16(buf[4*i+3])<<8)
		if got != s || right != s {
			t.Fatalf("sample %d: expected %d, got %d/%d", i, s, got, right)
		}
	}
}
