package spi

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/hal"
	"tickos/kernel"
)

type csPin struct{ writes []bool }

func (p *csPin) Name() string                 { return "CS" }
func (p *csPin) Configure(hal.GPIOMode) error { return nil }
func (p *csPin) Read() (bool, error)          { return false, nil }
func (p *csPin) Write(level bool) error       { p.writes = append(p.writes, level); return nil }

const irq kernel.IRQ = 7

func setup(t *testing.T) (*kernel.Kernel, *hal.LoopbackSPI, *csPin, *Driver) {
	t.Helper()
	k, err := kernel.New(kernel.Config{Clock: kernel.ClockVirtual, Checks: true})
	require.NoError(t, err)
	cs := &csPin{}
	bus := hal.NewLoopbackSPI(cs)
	cs.writes = nil
	return k, bus, cs, New(k, bus, irq)
}

func spawn(t *testing.T, k *kernel.Kernel, prio kernel.Priority, name string, fn func()) {
	t.Helper()
	_, err := k.CreateThread(kernel.NewWorkingArea(make([]byte, 64)), prio, name,
		func(any) kernel.Msg { fn(); return kernel.MsgOK }, nil)
	require.NoError(t, err)
}

func run(t *testing.T, k *kernel.Kernel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx))
}

func TestExchangeEchoes(t *testing.T) {
	k, bus, cs, d := setup(t)
	rx := make([]byte, 4)
	var err error
	spawn(t, k, kernel.NormalPriority, "master", func() {
		d.AcquireBus()
		if err = d.Start(hal.SPIConfig{Frequency: 8_000_000}); err != nil {
			return
		}
		d.Select()
		err = d.Exchange([]byte{1, 2, 3, 4}, rx)
		d.Unselect()
		d.ReleaseBus()
	})
	run(t, k)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, rx)
	assert.Equal(t, uint64(4), bus.Bytes())
	assert.Equal(t, []bool{false, true}, cs.writes)
}

func TestExchangeBeforeStart(t *testing.T) {
	k, _, _, d := setup(t)
	var err error
	spawn(t, k, kernel.NormalPriority, "master", func() {
		err = d.Send([]byte{0xff})
	})
	run(t, k)
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestBusArbitration(t *testing.T) {
	k, bus, _, d := setup(t)
	var trace []string
	owner := ""
	for _, name := range []string{"A", "B"} {
		name := name
		freq := uint32(1_000_000)
		if name == "B" {
			freq = 2_000_000
		}
		spawn(t, k, kernel.NormalPriority, name, func() {
			buf := make([]byte, 16)
			for i := 0; i < 3; i++ {
				d.AcquireBus()
				if owner != "" {
					t.Errorf("%s acquired the bus while %s held it", name, owner)
				}
				owner = name
				_ = d.Start(hal.SPIConfig{Frequency: freq})
				d.Select()
				if err := d.Exchange(buf, buf); err != nil {
					t.Errorf("%s: %v", name, err)
				}
				if got := bus.Config().Frequency; got != freq {
					t.Errorf("%s: bus reconfigured under it: %d", name, got)
				}
				d.Unselect()
				trace = append(trace, fmt.Sprintf("%s%d", name, i))
				owner = ""
				d.ReleaseBus()
				k.Yield()
			}
		})
	}
	run(t, k)
	assert.Equal(t, []string{"A0", "B0", "A1", "B1", "A2", "B2"}, trace)
	assert.Equal(t, uint64(6*16), bus.Bytes())
}
