package kernel

import "fmt"

// Msg is the wake-up message a thread receives when it leaves a wait.
type Msg int32

const (
	MsgOK      Msg = 0
	MsgTimeout Msg = -1
	MsgReset   Msg = -2
)

func (m Msg) String() string {
	switch m {
	case MsgOK:
		return "ok"
	case MsgTimeout:
		return "timeout"
	case MsgReset:
		return "reset"
	default:
		return fmt.Sprintf("Msg(%d)", int32(m))
	}
}

// readyI moves a waiting thread to the ready list with the given wake-up
// message. The switch, if the thread outranks the current one, is deferred
// to the next reschedule point.
func (k *Kernel) readyI(i int16, msg Msg) {
	t := &k.threads[i]
	if k.cfg.Checks && (t.state == ThreadReady || t.state == ThreadRunning || t.state == ThreadFinal) {
		k.fatalf("ready: thread %q is %s", t.name, t.state)
	}
	t.state = ThreadReady
	t.msg = msg
	t.wait = waitDesc{}
	k.insertBehind(i)
	if t.prio > k.threads[k.cur].prio {
		k.needResched = true
	}
}

// goSleepS puts the current thread into state and runs the best ready
// thread. It returns the wake-up message once the caller is switched back in.
func (k *Kernel) goSleepS(state ThreadState) Msg {
	otp := k.cur
	k.threads[otp].state = state
	k.switchTo(k.popFront(&k.ready), otp)
	return k.threads[otp].msg
}

// goSleepTimeoutS is goSleepS bounded by timeout ticks. On expiry the thread
// is readied with MsgTimeout after any wait-specific cleanup. TimeImmediate
// returns MsgTimeout without sleeping.
func (k *Kernel) goSleepTimeoutS(state ThreadState, timeout Tick) Msg {
	switch timeout {
	case TimeImmediate:
		k.threads[k.cur].wait = waitDesc{}
		return MsgTimeout
	case TimeInfinite:
		return k.goSleepS(state)
	}
	vt := k.threadTimer(k.cur)
	k.armI(vt, timeout, nil, nil)
	msg := k.goSleepS(state)
	if k.vt[vt].armed {
		k.cancelI(vt)
	}
	return msg
}

// timeoutI is the expiry action of a thread's private timer.
func (k *Kernel) timeoutI(i int16) {
	t := &k.threads[i]
	switch t.state {
	case ThreadSleeping, ThreadWaitingEvent:
	case ThreadSuspended:
		switch t.wait.kind {
		case waitSem:
			t.wait.sem.count++
			k.remove(&t.wait.sem.queue, i)
		case waitRef:
			t.wait.ref.set = false
		case waitJoin:
			k.remove(&k.threads[t.wait.owner].joinq, i)
		default:
			return
		}
	default:
		// already woken; the timer raced the wake-up
		return
	}
	k.readyI(i, MsgTimeout)
}

// rescheduleS switches to the best ready thread if it outranks the running
// one.
func (k *Kernel) rescheduleS() {
	k.needResched = false
	if k.readyHead() > k.threads[k.cur].prio {
		otp := k.cur
		ntp := k.popFront(&k.ready)
		k.threads[otp].state = ThreadReady
		k.insertAhead(otp)
		k.switchTo(ntp, otp)
	}
}

// switchTo makes ntp the running thread and parks otp, whose state the
// caller has already set.
func (k *Kernel) switchTo(ntp, otp int16) {
	if ot := &k.threads[otp]; k.cfg.Checks && ot.wa != nil && !ot.wa.intact() {
		k.fatalf("stack guard of thread %q overwritten", ot.name)
	}
	nt := &k.threads[ntp]
	nt.state = ThreadRunning
	k.cur = ntp
	k.needResched = false
	ep := k.epoch
	k.swap(nt, &k.threads[otp])
	k.epoch = ep
}

// Reschedule performs a pending reschedule now rather than at Unlock.
func (s Sys) Reschedule() {
	s.checkS("Reschedule")
	s.k.rescheduleS()
}

// Yield gives the CPU to the next ready thread of equal or higher priority.
func (k *Kernel) Yield() {
	s := k.Lock()
	s.Yield()
	s.Unlock()
}

// Yield gives the CPU to the next ready thread of equal or higher priority.
func (s Sys) Yield() {
	s.checkS("Yield")
	k := s.k
	if !k.running() || k.cur == k.idle {
		return
	}
	otp := k.cur
	if k.readyHead() >= k.threads[otp].prio {
		ntp := k.popFront(&k.ready)
		k.threads[otp].state = ThreadReady
		k.insertBehind(otp)
		k.switchTo(ntp, otp)
	}
}

// Sleep suspends the calling thread for n ticks. Sleep(0) yields.
func (k *Kernel) Sleep(n Tick) {
	s := k.Lock()
	s.Sleep(n)
	s.Unlock()
}

// Sleep suspends the calling thread for n ticks. Sleep(0) yields.
func (s Sys) Sleep(n Tick) {
	if n == TimeImmediate {
		s.Yield()
		return
	}
	s.blocking("Sleep")
	s.k.goSleepTimeoutS(ThreadSleeping, n)
}

// SleepUntil sleeps until the system time reaches t, returning at once if it
// already has.
func (k *Kernel) SleepUntil(t uint64) {
	s := k.Lock()
	if now := k.now; t > now {
		d := t - now
		if d >= uint64(TimeInfinite) {
			d = uint64(TimeInfinite) - 1
		}
		s.Sleep(Tick(d))
	}
	s.Unlock()
}

// ThreadRef holds at most one thread suspended on it. The zero value is
// empty.
type ThreadRef struct {
	slot int16
	set  bool
}

// Empty reports whether no thread is suspended on r.
func (r *ThreadRef) Empty() bool { return !r.set }

// Suspend parks the calling thread on r until Resume or timeout. r must be
// empty.
func (s Sys) Suspend(r *ThreadRef, timeout Tick) Msg {
	s.blocking("Suspend")
	k := s.k
	if r.set {
		k.fatalf("Suspend: reference already holds %q", k.threads[r.slot].name)
	}
	if timeout == TimeImmediate {
		return MsgTimeout
	}
	r.slot = k.cur
	r.set = true
	k.threads[k.cur].wait = waitDesc{kind: waitRef, ref: r}
	return k.goSleepTimeoutS(ThreadSuspended, timeout)
}

// Resume readies the thread suspended on r with msg. An empty r is a no-op.
func (l Locked) Resume(r *ThreadRef, msg Msg) {
	l.check("Resume")
	if !r.set {
		return
	}
	r.set = false
	l.k.readyI(r.slot, msg)
}

// Resume readies the thread suspended on r with msg and reschedules.
func (k *Kernel) Resume(r *ThreadRef, msg Msg) {
	s := k.Lock()
	s.Resume(r, msg)
	s.Unlock()
}
