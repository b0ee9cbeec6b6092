package hal

import (
	"bytes"
	"errors"
	"testing"
)

func TestLoopbackSPIEchoes(t *testing.T) {
	cs := newMemPin("CS0", false, nil)
	s := NewLoopbackSPI(cs)
	if level, _ := cs.Read(); !level {
		t.Fatal("expected chip select idle high")
	}

	if err := s.Tx([]byte{1}, nil); !errors.Is(err, ErrSPINotConfigured) {
		t.Fatalf("expected ErrSPINotConfigured, got %v", err)
	}
	if err := s.Configure(SPIConfig{Frequency: 1_000_000, Mode: 4}); err == nil {
		t.Fatal("expected bad mode to be rejected")
	}
	if err := s.Configure(SPIConfig{Frequency: 1_000_000}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	s.Select()
	if level, _ := cs.Read(); level {
		t.Fatal("expected chip select low while selected")
	}
	w := []byte{0xde, 0xad, 0xbe, 0xef}
	r := make([]byte, len(w))
	if err := s.Tx(w, r); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	b, err := s.Transfer(0x42)
	if err != nil || b != 0x42 {
		t.Fatalf("expected 0x42, got %#x (%v)", b, err)
	}
	s.Unselect()

	if !bytes.Equal(r, w) {
		t.Fatalf("expected %x, got %x", w, r)
	}
	if s.Bytes() != 5 {
		t.Fatalf("expected 5 bytes shifted, got %d", s.Bytes())
	}
}
