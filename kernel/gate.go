package kernel

// Locked is the capability to call I-class operations: the holder is inside
// the critical-section gate. Interrupt handlers and timer callbacks receive
// one; threads get one embedded in the Sys returned by Kernel.Lock.
//
// A token is only valid for the gate hold it was issued for.
type Locked struct {
	k     *Kernel
	epoch uint32
}

// Sys is the capability to call S-class operations: the calling thread holds
// the gate and may reschedule. Release it with Unlock.
type Sys struct {
	Locked
}

// Kernel returns the kernel the token belongs to.
func (l Locked) Kernel() *Kernel { return l.k }

// Lock enters the critical section from thread context. Interrupts latched
// while the caller was running are taken before the gate closes, so the
// caller may be preempted here.
func (k *Kernel) Lock() Sys {
	k.threadCall("Lock")
	k.lock()
	if k.running() && k.irqPending() {
		k.serviceIRQs()
		if k.needResched {
			k.rescheduleS()
		}
	}
	return Sys{Locked{k: k, epoch: k.epoch}}
}

// Unlock leaves the critical section, taking any latched interrupts and
// performing a deferred reschedule first.
func (s Sys) Unlock() {
	s.checkS("Unlock")
	s.k.unlockS()
}

// Poll is a preemption point for threads that compute for long stretches
// without otherwise entering the kernel.
func (k *Kernel) Poll() {
	k.Lock().Unlock()
}

func (k *Kernel) lock() {
	if k.cfg.Checks && k.locked {
		k.fatal("gate acquired twice")
	}
	k.locked = true
	k.epochSeq++
	k.epoch = k.epochSeq
}

func (k *Kernel) unlockS() {
	if k.running() {
		if k.irqPending() {
			k.serviceIRQs()
		}
		if k.needResched {
			k.rescheduleS()
		}
	}
	k.locked = false
}

// threadCall checks that a locking operation is called from thread context
// with the gate released.
func (k *Kernel) threadCall(op string) {
	select {
	case <-k.dead:
		panic(unwind{})
	default:
	}
	if !k.cfg.Checks {
		return
	}
	switch {
	case k.isr > 0:
		k.fatalf("%s: called from interrupt context", op)
	case k.locked:
		k.fatalf("%s: called with the gate held", op)
	}
}

func (l Locked) check(op string) {
	k := l.k
	if !k.cfg.Checks {
		return
	}
	if !k.locked || l.epoch != k.epoch {
		k.fatalf("%s: gate not held", op)
	}
}

func (s Sys) checkS(op string) {
	s.check(op)
	k := s.k
	if k.cfg.Checks && k.isr > 0 {
		k.fatalf("%s: S-class call from interrupt context", op)
	}
}

// blocking guards S-class operations that may put the caller to sleep.
func (s Sys) blocking(op string) {
	s.checkS(op)
	k := s.k
	if !k.running() {
		k.fatalf("%s: blocking call before Run", op)
	}
	if k.cur == k.idle {
		k.fatalf("%s: the idle thread cannot block", op)
	}
}
