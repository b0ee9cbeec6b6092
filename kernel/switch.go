package kernel

// unwind is the panic value used to tear a thread goroutine down once the
// kernel is dead. It never escapes the package.
type unwind struct{}

// swap hands the CPU from ot to nt and parks ot until it is switched back in.
func (k *Kernel) swap(nt, ot *Thread) {
	nt.resume <- struct{}{}
	k.park(ot)
}

// park blocks the calling goroutine until t is given the CPU. The idle
// thread also wakes when Run's context ends.
func (k *Kernel) park(t *Thread) {
	var stop <-chan struct{}
	if t == &k.threads[k.idle] {
		stop = k.stop
	}
	select {
	case <-t.resume:
	case <-k.dead:
		panic(unwind{})
	case <-stop:
		panic(unwind{})
	}
}

// trampoline is the goroutine body of every thread. The thread starts parked
// and, once switched in, releases the gate taken by whoever switched to it.
func (k *Kernel) trampoline(i int16) {
	defer k.wg.Done()
	t := &k.threads[i]
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(unwind); ok {
				return
			}
			k.halt(HaltInfo{
				Reason: "thread panicked",
				Thread: t.name,
				Value:  r,
				Stack:  captureStack(),
			})
		}
	}()

	k.park(t)
	k.unlockS()
	msg := t.fn(t.arg)
	k.Lock().Exit(msg)
}

// exitS marks the current thread FINAL, wakes its joiners and hands the CPU
// on. The calling goroutine must return without touching kernel state.
func (k *Kernel) exitS(msg Msg) {
	otp := k.cur
	t := &k.threads[otp]
	t.state = ThreadFinal
	t.msg = msg
	for j := k.popFront(&t.joinq); j != nilSlot; j = k.popFront(&t.joinq) {
		t.joined++
		k.readyI(j, MsgOK)
	}
	k.log.Debug().Str("thread", t.name).Int("msg", int(msg)).Log("thread exited")

	ntp := k.popFront(&k.ready)
	nt := &k.threads[ntp]
	nt.state = ThreadRunning
	k.cur = ntp
	k.needResched = false
	nt.resume <- struct{}{}
	panic(unwind{})
}
