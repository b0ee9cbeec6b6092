package hal

import (
	"errors"
	"sync"
)

// CANFrame is a classic CAN data or remote frame.
type CANFrame struct {
	ID       uint32
	Extended bool
	RTR      bool
	DLC      uint8
	Data     [8]byte
}

// CANIRQ is a set of controller interrupt sources.
type CANIRQ uint8

const (
	// CANIRQTx fires when a transmit mailbox becomes empty.
	CANIRQTx CANIRQ = 1 << iota
	// CANIRQRx fires while the receive FIFO holds frames.
	CANIRQRx
	// CANIRQError fires on bus or overrun errors.
	CANIRQError
	// CANIRQWakeup fires on bus activity while the controller sleeps.
	CANIRQWakeup
)

// CAN status bits reported with CANIRQError.
const (
	CANOverrun uint32 = 1 << iota
	CANBusOff
)

// CANConfig configures the controller on Start.
type CANConfig struct {
	Bitrate  uint32
	Loopback bool
}

var (
	ErrCANStopped  = errors.New("can: controller stopped")
	ErrCANAsleep   = errors.New("can: controller asleep")
	ErrCANTxFull   = errors.New("can: no free transmit mailbox")
	ErrCANBadFrame = errors.New("can: bad frame")
)

// CAN is a CAN controller: transmit mailboxes, a receive FIFO and an
// interrupt enable register.
//
// The notify callback installed with SetNotify plays the interrupt line: it
// is called with the sources that are both raised and enabled, from whatever
// goroutine caused them, and must not call back into the controller.
type CAN interface {
	Start(cfg CANConfig) error
	Stop()
	SetNotify(fn func(CANIRQ))
	EnableIRQ(m CANIRQ)
	DisableIRQ(m CANIRQ)
	TxReady() bool
	Transmit(f CANFrame) error
	RxReady() bool
	Receive() (CANFrame, bool)
	// Status returns and clears the error status bits.
	Status() uint32
	Sleep() error
	Wakeup() error
}

// LoopbackCAN is a CAN controller whose transmitted frames come back on its
// own receive FIFO. A frame stays in its transmit mailbox while the FIFO is
// full, so a stalled reader back-pressures the writer.
type LoopbackCAN struct {
	mu      sync.Mutex
	started bool
	asleep  bool
	ier     CANIRQ
	notify  func(CANIRQ)
	status  uint32

	tx    []CANFrame
	txCap int
	rx    []CANFrame
	rxCap int
}

// NewLoopbackCAN returns a stopped controller with the given number of
// transmit mailboxes and receive FIFO depth.
func NewLoopbackCAN(mailboxes, fifo int) *LoopbackCAN {
	if mailboxes <= 0 {
		mailboxes = 3
	}
	if fifo <= 0 {
		fifo = 3
	}
	return &LoopbackCAN{txCap: mailboxes, rxCap: fifo}
}

func (c *LoopbackCAN) Start(cfg CANConfig) error {
	if cfg.Bitrate == 0 {
		return errors.New("can: zero bitrate")
	}
	c.mu.Lock()
	c.started = true
	c.asleep = false
	c.tx = c.tx[:0]
	c.rx = c.rx[:0]
	c.status = 0
	c.mu.Unlock()
	return nil
}

func (c *LoopbackCAN) Stop() {
	c.mu.Lock()
	c.started = false
	c.ier = 0
	c.mu.Unlock()
}

func (c *LoopbackCAN) SetNotify(fn func(CANIRQ)) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// EnableIRQ unmasks m. A source whose condition already holds fires at once,
// as a level-triggered line would.
func (c *LoopbackCAN) EnableIRQ(m CANIRQ) {
	c.mu.Lock()
	c.ier |= m
	var raised CANIRQ
	if len(c.tx) < c.txCap {
		raised |= CANIRQTx
	}
	if len(c.rx) > 0 {
		raised |= CANIRQRx
	}
	c.fire(raised & m)
}

func (c *LoopbackCAN) DisableIRQ(m CANIRQ) {
	c.mu.Lock()
	c.ier &^= m
	c.mu.Unlock()
}

func (c *LoopbackCAN) TxReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.asleep && len(c.tx) < c.txCap
}

func (c *LoopbackCAN) Transmit(f CANFrame) error {
	if f.DLC > 8 || (!f.Extended && f.ID > 0x7FF) || f.ID > 0x1FFFFFFF {
		return ErrCANBadFrame
	}
	c.mu.Lock()
	switch {
	case !c.started:
		c.mu.Unlock()
		return ErrCANStopped
	case c.asleep:
		c.mu.Unlock()
		return ErrCANAsleep
	case len(c.tx) == c.txCap:
		c.mu.Unlock()
		return ErrCANTxFull
	}
	c.tx = append(c.tx, f)
	c.fire(c.deliver())
	return nil
}

func (c *LoopbackCAN) RxReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rx) > 0
}

func (c *LoopbackCAN) Receive() (CANFrame, bool) {
	c.mu.Lock()
	if len(c.rx) == 0 {
		c.mu.Unlock()
		return CANFrame{}, false
	}
	f := c.rx[0]
	c.rx = append(c.rx[:0], c.rx[1:]...)
	c.fire(c.deliver())
	return f, true
}

func (c *LoopbackCAN) Status() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	c.status = 0
	return s
}

func (c *LoopbackCAN) Sleep() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrCANStopped
	}
	c.asleep = true
	return nil
}

func (c *LoopbackCAN) Wakeup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrCANStopped
	}
	c.asleep = false
	return nil
}

// Inject puts a frame on the bus from another node. A sleeping controller
// wakes up and reports CANIRQWakeup; a full FIFO drops the frame and reports
// an overrun.
func (c *LoopbackCAN) Inject(f CANFrame) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	var raised CANIRQ
	if c.asleep {
		c.asleep = false
		raised |= CANIRQWakeup
	}
	if len(c.rx) == c.rxCap {
		c.status |= CANOverrun
		raised |= CANIRQError
	} else {
		c.rx = append(c.rx, f)
		raised |= CANIRQRx
	}
	c.fire(raised | c.deliver())
}

// deliver moves pending transmit mailboxes onto the receive FIFO while it
// has room. Called with mu held.
func (c *LoopbackCAN) deliver() CANIRQ {
	var raised CANIRQ
	for len(c.tx) > 0 && len(c.rx) < c.rxCap {
		c.rx = append(c.rx, c.tx[0])
		c.tx = append(c.tx[:0], c.tx[1:]...)
		raised |= CANIRQTx | CANIRQRx
	}
	return raised
}

// fire releases mu and reports the enabled part of raised.
func (c *LoopbackCAN) fire(raised CANIRQ) {
	raised &= c.ier
	notify := c.notify
	c.mu.Unlock()
	if raised != 0 && notify != nil {
		notify(raised)
	}
}
