// Package can is an interrupt-driven CAN driver.
//
// The controller's interrupt sources are routed to kernel interrupt lines.
// Each handler masks its source and broadcasts the matching event source;
// Transmit and Receive re-enable the source before they block, so a busy bus
// costs one interrupt per wait instead of one per frame.
package can

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"

	"tickos/hal"
	"tickos/kernel"
)

// State is the driver state.
type State uint8

const (
	StateStop State = iota
	StateReady
	StateSleep
)

func (s State) String() string {
	switch s {
	case StateStop:
		return "stop"
	case StateReady:
		return "ready"
	case StateSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

var (
	ErrTimeout = errors.New("can: timeout")
	ErrStopped = errors.New("can: driver stopped")
	// ErrEmpty means the controller reported a frame but had none to give.
	ErrEmpty = errors.New("can: receive fifo empty")
)

// Lines are the kernel interrupt lines the controller sources are routed to.
type Lines struct {
	Tx, Rx, Error, Wakeup kernel.IRQ
}

// Driver is a CAN driver bound to one controller.
type Driver struct {
	k     *kernel.Kernel
	ctl   hal.CAN
	lines Lines
	log   *logiface.Logger[logiface.Event]

	state  State
	status uint32
	txSem  kernel.Semaphore
	rxSem  kernel.Semaphore

	// TxEmptyEvent is broadcast when a transmit mailbox frees up.
	TxEmptyEvent kernel.EventSource
	// RxFullEvent is broadcast when frames are waiting in the receive FIFO.
	RxFullEvent kernel.EventSource
	// ErrorEvent is broadcast with the controller status bits as flags.
	ErrorEvent kernel.EventSource
	// SleepEvent is broadcast when the driver enters sleep mode.
	SleepEvent kernel.EventSource
	// WakeupEvent is broadcast when the driver leaves sleep mode.
	WakeupEvent kernel.EventSource
}

// New binds ctl to k, attaching the interrupt handlers on lines. It must be
// called before Run or from a thread.
func New(k *kernel.Kernel, ctl hal.CAN, lines Lines, log *logiface.Logger[logiface.Event]) *Driver {
	d := &Driver{k: k, ctl: ctl, lines: lines, log: log}
	k.AttachIRQ(lines.Tx, d.txISR)
	k.AttachIRQ(lines.Rx, d.rxISR)
	k.AttachIRQ(lines.Error, d.errorISR)
	k.AttachIRQ(lines.Wakeup, d.wakeupISR)
	ctl.SetNotify(d.raise)
	return d
}

// raise is the controller's interrupt output.
func (d *Driver) raise(m hal.CANIRQ) {
	if m&hal.CANIRQTx != 0 {
		d.k.RaiseIRQ(d.lines.Tx)
	}
	if m&hal.CANIRQRx != 0 {
		d.k.RaiseIRQ(d.lines.Rx)
	}
	if m&hal.CANIRQError != 0 {
		d.k.RaiseIRQ(d.lines.Error)
	}
	if m&hal.CANIRQWakeup != 0 {
		d.k.RaiseIRQ(d.lines.Wakeup)
	}
}

func (d *Driver) txISR(l kernel.Locked) {
	// no more events until a frame is queued behind a full mailbox set
	d.ctl.DisableIRQ(hal.CANIRQTx)
	l.SemReset(&d.txSem, 0)
	l.Broadcast(&d.TxEmptyEvent)
}

func (d *Driver) rxISR(l kernel.Locked) {
	// no more events until the FIFO has been drained
	d.ctl.DisableIRQ(hal.CANIRQRx)
	l.SemReset(&d.rxSem, 0)
	l.Broadcast(&d.RxFullEvent)
}

func (d *Driver) errorISR(l kernel.Locked) {
	st := d.ctl.Status()
	if st == 0 {
		return
	}
	d.status |= st
	l.BroadcastFlags(&d.ErrorEvent, kernel.EventFlags(st))
}

func (d *Driver) wakeupISR(l kernel.Locked) {
	if d.state != StateSleep {
		return
	}
	d.state = StateReady
	d.wakeAllI(l)
	l.Broadcast(&d.WakeupEvent)
}

func (d *Driver) wakeAllI(l kernel.Locked) {
	l.SemReset(&d.txSem, 0)
	l.SemReset(&d.rxSem, 0)
}

// Start configures and activates the controller.
func (d *Driver) Start(cfg hal.CANConfig) error {
	s := d.k.Lock()
	defer s.Unlock()
	if err := d.ctl.Start(cfg); err != nil {
		return fmt.Errorf("can: start: %w", err)
	}
	d.ctl.EnableIRQ(hal.CANIRQError | hal.CANIRQWakeup)
	d.state = StateReady
	d.status = 0
	d.log.Info().Uint64("bitrate", uint64(cfg.Bitrate)).Log("can: started")
	return nil
}

// Stop deactivates the controller. Threads blocked in Transmit or Receive
// return ErrStopped.
func (d *Driver) Stop() {
	s := d.k.Lock()
	defer s.Unlock()
	d.ctl.Stop()
	d.state = StateStop
	d.wakeAllI(s.Locked)
}

// State returns the driver state.
func (d *Driver) State() State {
	s := d.k.Lock()
	defer s.Unlock()
	return d.state
}

// Transmit queues f, waiting up to timeout ticks for a free mailbox. A
// sleeping driver is treated as having no free mailbox.
func (d *Driver) Transmit(f hal.CANFrame, timeout kernel.Tick) error {
	s := d.k.Lock()
	defer s.Unlock()
	for d.state != StateReady || !d.ctl.TxReady() {
		if d.state == StateStop {
			return ErrStopped
		}
		if d.state == StateReady {
			d.ctl.EnableIRQ(hal.CANIRQTx)
		}
		if s.SemWait(&d.txSem, timeout) == kernel.MsgTimeout {
			return ErrTimeout
		}
	}
	if err := d.ctl.Transmit(f); err != nil {
		return fmt.Errorf("can: transmit: %w", err)
	}
	return nil
}

// Receive returns the oldest received frame, waiting up to timeout ticks for
// one to arrive.
func (d *Driver) Receive(timeout kernel.Tick) (hal.CANFrame, error) {
	s := d.k.Lock()
	defer s.Unlock()
	for d.state != StateReady || !d.ctl.RxReady() {
		if d.state == StateStop {
			return hal.CANFrame{}, ErrStopped
		}
		if d.state == StateReady {
			d.ctl.EnableIRQ(hal.CANIRQRx)
		}
		if s.SemWait(&d.rxSem, timeout) == kernel.MsgTimeout {
			return hal.CANFrame{}, ErrTimeout
		}
	}
	f, ok := d.ctl.Receive()
	if !ok {
		return hal.CANFrame{}, fmt.Errorf("can: receive: %w", ErrEmpty)
	}
	return f, nil
}

// Status returns and clears the accumulated error status bits.
func (d *Driver) Status() uint32 {
	s := d.k.Lock()
	defer s.Unlock()
	st := d.status
	d.status = 0
	return st
}

// Sleep puts a ready controller into sleep mode.
func (d *Driver) Sleep() error {
	s := d.k.Lock()
	defer s.Unlock()
	if d.state != StateReady {
		return nil
	}
	if err := d.ctl.Sleep(); err != nil {
		return fmt.Errorf("can: sleep: %w", err)
	}
	d.state = StateSleep
	s.Broadcast(&d.SleepEvent)
	return nil
}

// Wakeup forces a sleeping controller awake.
func (d *Driver) Wakeup() error {
	s := d.k.Lock()
	defer s.Unlock()
	if d.state != StateSleep {
		return nil
	}
	if err := d.ctl.Wakeup(); err != nil {
		return fmt.Errorf("can: wakeup: %w", err)
	}
	d.state = StateReady
	d.wakeAllI(s.Locked)
	s.Broadcast(&d.WakeupEvent)
	return nil
}
