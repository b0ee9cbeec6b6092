package kernel

import "math/bits"

// IRQ is an interrupt line number.
type IRQ uint8

// MaxIRQ is the number of interrupt lines.
const MaxIRQ = 32

// IRQTick is the line reserved for the system tick.
const IRQTick IRQ = 0

// ISRFunc is an interrupt service routine. It runs with the gate held and
// may only use I-class operations.
type ISRFunc func(l Locked)

// AttachIRQ installs fn on line. Lines are attached before Run or from a
// thread; the tick line is owned by the kernel.
func (k *Kernel) AttachIRQ(line IRQ, fn ISRFunc) {
	if line == IRQTick || line >= MaxIRQ {
		panic("kernel: AttachIRQ: bad line")
	}
	s := k.Lock()
	k.irqs[line] = fn
	s.Unlock()
}

// RaiseIRQ latches an interrupt on line. It is safe to call from any
// goroutine; the handler runs the next time interrupts are enabled on the
// CPU.
func (k *Kernel) RaiseIRQ(line IRQ) {
	switch {
	case line >= MaxIRQ:
		return
	case line == IRQTick:
		k.Tick()
		return
	}
	k.pending.Or(1 << line)
	k.nudge()
}

// Tick delivers one system tick. It is safe to call from any goroutine.
func (k *Kernel) Tick() {
	k.ticks.Add(1)
	k.nudge()
}

func (k *Kernel) nudge() {
	select {
	case k.wake <- struct{}{}:
	default:
	}
}

func (k *Kernel) irqPending() bool {
	return k.pending.Load() != 0 || k.ticks.Load() != 0
}

// interruptI runs fn as an interrupt handler on the current gate hold.
func (k *Kernel) interruptI(fn func(Locked)) {
	ep := k.epoch
	k.isr++
	k.epochSeq++
	k.epoch = k.epochSeq
	fn(Locked{k: k, epoch: k.epoch})
	k.isr--
	k.epoch = ep
}

// serviceIRQs takes every latched tick and interrupt. The caller holds the
// gate and performs the epilogue reschedule.
func (k *Kernel) serviceIRQs() {
	k.interruptI(func(l Locked) {
		for {
			n := k.ticks.Swap(0)
			p := k.pending.Swap(0)
			if n == 0 && p == 0 {
				return
			}
			if n > 0 {
				k.advanceI(uint64(n))
			}
			for p != 0 {
				line := bits.TrailingZeros32(p)
				p &^= 1 << uint(line)
				if fn := k.irqs[line]; fn != nil {
					fn(l)
				} else {
					k.log.Warning().Int("irq", line).Log("spurious interrupt")
				}
			}
		}
	})
}
