package hal

import (
	"errors"
	"testing"
)

func TestLoopbackCANBackpressure(t *testing.T) {
	c := NewLoopbackCAN(2, 1)
	var irqs []CANIRQ
	c.SetNotify(func(m CANIRQ) { irqs = append(irqs, m) })

	if err := c.Transmit(CANFrame{ID: 1}); !errors.Is(err, ErrCANStopped) {
		t.Fatalf("expected ErrCANStopped, got %v", err)
	}
	if err := c.Start(CANConfig{Bitrate: 500_000}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.EnableIRQ(CANIRQRx)

	for id := uint32(1); id <= 3; id++ {
		if err := c.Transmit(CANFrame{ID: id}); err != nil {
			t.Fatalf("Transmit %d: %v", id, err)
		}
	}
	if c.TxReady() {
		t.Fatal("expected both mailboxes busy behind a full FIFO")
	}
	if err := c.Transmit(CANFrame{ID: 4}); !errors.Is(err, ErrCANTxFull) {
		t.Fatalf("expected ErrCANTxFull, got %v", err)
	}
	if len(irqs) != 1 || irqs[0] != CANIRQRx {
		t.Fatalf("expected one masked rx interrupt, got %v", irqs)
	}

	c.EnableIRQ(CANIRQTx)
	for want := uint32(1); want <= 3; want++ {
		f, ok := c.Receive()
		if !ok || f.ID != want {
			t.Fatalf("expected frame %d, got %+v (%t)", want, f, ok)
		}
	}
	if _, ok := c.Receive(); ok {
		t.Fatal("expected empty FIFO")
	}
	if !c.TxReady() {
		t.Fatal("expected free mailboxes")
	}
}

func TestLoopbackCANRejectsBadFrames(t *testing.T) {
	c := NewLoopbackCAN(0, 0)
	_ = c.Start(CANConfig{Bitrate: 125_000})
	for _, f := range []CANFrame{
		{ID: 0x800},
		{ID: 0x20000000, Extended: true},
		{ID: 1, DLC: 9},
	} {
		if err := c.Transmit(f); !errors.Is(err, ErrCANBadFrame) {
			t.Fatalf("expected ErrCANBadFrame for %+v, got %v", f, err)
		}
	}
}

func TestLoopbackCANInjectWakesAndOverruns(t *testing.T) {
	c := NewLoopbackCAN(1, 1)
	var irqs CANIRQ
	c.SetNotify(func(m CANIRQ) { irqs |= m })
	_ = c.Start(CANConfig{Bitrate: 125_000})
	c.EnableIRQ(CANIRQError | CANIRQWakeup)

	if err := c.Sleep(); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if err := c.Transmit(CANFrame{ID: 7}); !errors.Is(err, ErrCANAsleep) {
		t.Fatalf("expected ErrCANAsleep, got %v", err)
	}
	c.Inject(CANFrame{ID: 8})
	if irqs != CANIRQWakeup {
		t.Fatalf("expected wakeup interrupt, got %b", irqs)
	}
	c.Inject(CANFrame{ID: 9})
	if irqs&CANIRQError == 0 {
		t.Fatalf("expected error interrupt, got %b", irqs)
	}
	if s := c.Status(); s != CANOverrun {
		t.Fatalf("expected overrun status, got %b", s)
	}
	if s := c.Status(); s != 0 {
		t.Fatalf("expected status cleared, got %b", s)
	}
}
