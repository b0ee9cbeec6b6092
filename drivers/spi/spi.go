// Package spi is an SPI master driver with bus arbitration.
//
// Threads sharing a bus bracket their transactions with AcquireBus and
// ReleaseBus. A transfer is handed to the bus engine and the calling thread
// sleeps until the completion interrupt resumes it.
package spi

import (
	"errors"
	"fmt"

	"tickos/hal"
	"tickos/kernel"
)

// State is the driver state.
type State uint8

const (
	StateStop State = iota
	StateReady
	StateActive
)

var ErrNotStarted = errors.New("spi: driver not started")

// Driver is an SPI driver bound to one bus.
type Driver struct {
	k   *kernel.Kernel
	bus hal.SPIBus
	irq kernel.IRQ

	state State
	cfg   hal.SPIConfig
	err   error
	ref   kernel.ThreadRef
	mutex kernel.Semaphore
}

// New binds bus to k, attaching the completion handler on irq. It must be
// called before Run or from a thread.
func New(k *kernel.Kernel, bus hal.SPIBus, irq kernel.IRQ) *Driver {
	d := &Driver{k: k, bus: bus, irq: irq}
	kernel.InitSemaphore(&d.mutex, 1)
	k.AttachIRQ(irq, d.completeISR)
	return d
}

func (d *Driver) completeISR(l kernel.Locked) {
	if d.state == StateActive {
		d.state = StateReady
	}
	l.Resume(&d.ref, kernel.MsgOK)
}

// AcquireBus gains exclusive use of the bus, waiting in FIFO order.
func (d *Driver) AcquireBus() kernel.Msg {
	return d.k.SemWait(&d.mutex)
}

// ReleaseBus hands the bus to the next waiter.
func (d *Driver) ReleaseBus() {
	d.k.SemSignal(&d.mutex)
}

// Start configures the bus. It may be called again with a different
// configuration by the bus owner.
func (d *Driver) Start(cfg hal.SPIConfig) error {
	s := d.k.Lock()
	defer s.Unlock()
	if err := d.bus.Configure(cfg); err != nil {
		return fmt.Errorf("spi: configure: %w", err)
	}
	d.cfg = cfg
	d.state = StateReady
	return nil
}

// Config returns the configuration of the last Start.
func (d *Driver) Config() hal.SPIConfig {
	s := d.k.Lock()
	defer s.Unlock()
	return d.cfg
}

// Stop deactivates the driver.
func (d *Driver) Stop() {
	s := d.k.Lock()
	d.state = StateStop
	s.Unlock()
}

// Select asserts the chip select line.
func (d *Driver) Select() { d.bus.Select() }

// Unselect releases the chip select line.
func (d *Driver) Unselect() { d.bus.Unselect() }

// Exchange shifts tx out while shifting rx in. The shorter slice is padded
// with zeros or discarded respectively.
func (d *Driver) Exchange(tx, rx []byte) error {
	s := d.k.Lock()
	defer s.Unlock()
	if d.state != StateReady {
		return ErrNotStarted
	}
	d.state = StateActive
	d.err = d.bus.Tx(tx, rx)
	d.k.RaiseIRQ(d.irq)
	s.Suspend(&d.ref, kernel.TimeInfinite)
	if d.err != nil {
		return fmt.Errorf("spi: transfer: %w", d.err)
	}
	return nil
}

// Send shifts tx out, ignoring the received bytes.
func (d *Driver) Send(tx []byte) error { return d.Exchange(tx, nil) }

// Receive shifts zeros out while reading rx.
func (d *Driver) Receive(rx []byte) error { return d.Exchange(nil, rx) }
