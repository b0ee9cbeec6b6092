package kernel

// TimerFunc runs in interrupt context when a virtual timer expires.
type TimerFunc func(l Locked, arg any)

// TimerID names a user virtual timer obtained from NewTimer.
type TimerID uint16

// vtimer is one entry of the delta queue. Entry 0 is the list header; its
// delta is the maximum so that insertion scans always stop on it.
type vtimer struct {
	next, prev int16
	delta      Tick
	armed      bool
	owner      int16
	fn         TimerFunc
	arg        any
}

func (k *Kernel) initTimers(private, user int) {
	k.vt = make([]vtimer, 1+private+user)
	k.vt[0] = vtimer{delta: TimeInfinite, owner: nilSlot}
	for i := 1; i < len(k.vt); i++ {
		k.vt[i].owner = nilSlot
		if i <= private {
			k.vt[i].owner = int16(i - 1)
		}
	}
	k.vtUser = 1 + private
	k.vtNext = k.vtUser
}

func (k *Kernel) threadTimer(slot int16) int16 { return 1 + slot }

// NewTimer allocates a user virtual timer.
func (k *Kernel) NewTimer() (TimerID, error) {
	s := k.Lock()
	defer s.Unlock()
	if k.vtNext == len(k.vt) {
		return 0, ErrNoTimers
	}
	id := TimerID(k.vtNext)
	k.vtNext++
	return id, nil
}

func (k *Kernel) timerIndex(id TimerID, op string) int16 {
	if int(id) < k.vtUser || int(id) >= k.vtNext {
		k.fatalf("%s: unknown timer %d", op, id)
	}
	return int16(id)
}

// armI inserts timer i to fire after delay ticks, replacing any previous
// arming. A zero delay fires on the next tick.
func (k *Kernel) armI(i int16, delay Tick, fn TimerFunc, arg any) {
	v := &k.vt[i]
	if v.armed {
		k.cancelI(i)
	}
	if delay == 0 {
		delay = 1
	}
	v.fn, v.arg = fn, arg

	p := k.vt[0].next
	for k.vt[p].delta < delay {
		delay -= k.vt[p].delta
		p = k.vt[p].next
	}
	v.delta = delay
	v.next = p
	v.prev = k.vt[p].prev
	k.vt[v.prev].next = i
	k.vt[p].prev = i
	if p != 0 {
		k.vt[p].delta -= delay
	}
	v.armed = true
}

// cancelI unlinks an armed timer, folding its delta into its successor.
func (k *Kernel) cancelI(i int16) {
	v := &k.vt[i]
	if v.next != 0 {
		k.vt[v.next].delta += v.delta
	}
	k.vt[v.prev].next = v.next
	k.vt[v.next].prev = v.prev
	v.next, v.prev = 0, 0
	v.armed = false
}

// tickI advances time by one tick and fires every timer that expires.
func (k *Kernel) tickI(l Locked) {
	k.now++
	h := k.vt[0].next
	if h == 0 {
		return
	}
	k.vt[h].delta--
	for h = k.vt[0].next; h != 0 && k.vt[h].delta == 0; h = k.vt[0].next {
		v := &k.vt[h]
		k.vt[0].next = v.next
		k.vt[v.next].prev = 0
		v.next, v.prev = 0, 0
		v.armed = false
		if v.fn != nil {
			v.fn(l, v.arg)
		} else if v.owner != nilSlot {
			k.timeoutI(v.owner)
		}
	}
}

// advanceI applies n ticks, skipping straight over stretches in which no
// timer expires.
func (k *Kernel) advanceI(n uint64) {
	l := Locked{k: k, epoch: k.epoch}
	for n > 0 {
		h := k.vt[0].next
		if h == 0 {
			k.now += n
			return
		}
		d := uint64(k.vt[h].delta)
		if n < d {
			k.vt[h].delta -= Tick(n)
			k.now += n
			return
		}
		k.vt[h].delta = 1
		k.now += d - 1
		n -= d - 1
		k.tickI(l)
		n--
	}
}

// ArmTimer arms a user timer. Re-arming an armed timer restarts it.
func (k *Kernel) ArmTimer(id TimerID, delay Tick, fn TimerFunc, arg any) {
	s := k.Lock()
	s.ArmTimer(id, delay, fn, arg)
	s.Unlock()
}

// ArmTimer arms a user timer. Re-arming an armed timer restarts it.
func (l Locked) ArmTimer(id TimerID, delay Tick, fn TimerFunc, arg any) {
	l.check("ArmTimer")
	if fn == nil {
		l.k.fatal("ArmTimer: nil callback")
	}
	if delay == TimeInfinite {
		l.k.fatal("ArmTimer: infinite delay")
	}
	l.k.armI(l.k.timerIndex(id, "ArmTimer"), delay, fn, arg)
}

// CancelTimer disarms a user timer. Cancelling an idle timer is a no-op.
func (k *Kernel) CancelTimer(id TimerID) {
	s := k.Lock()
	s.CancelTimer(id)
	s.Unlock()
}

// CancelTimer disarms a user timer. Cancelling an idle timer is a no-op.
func (l Locked) CancelTimer(id TimerID) {
	l.check("CancelTimer")
	i := l.k.timerIndex(id, "CancelTimer")
	if l.k.vt[i].armed {
		l.k.cancelI(i)
	}
}

// TimerArmed reports whether a user timer is pending.
func (l Locked) TimerArmed(id TimerID) bool {
	l.check("TimerArmed")
	return l.k.vt[l.k.timerIndex(id, "TimerArmed")].armed
}

// TimerRemaining returns the ticks left before an armed timer fires, or 0
// if it is not armed.
func (l Locked) TimerRemaining(id TimerID) Tick {
	l.check("TimerRemaining")
	k := l.k
	i := k.timerIndex(id, "TimerRemaining")
	if !k.vt[i].armed {
		return 0
	}
	var sum Tick
	for p := k.vt[0].next; p != 0; p = k.vt[p].next {
		sum += k.vt[p].delta
		if p == i {
			break
		}
	}
	return sum
}

// Now returns the number of ticks since the kernel started.
func (k *Kernel) Now() uint64 { return k.now }

// Now returns the number of ticks since the kernel started.
func (l Locked) Now() uint64 { return l.k.now }

// armedDeltas returns the delta of every armed timer in queue order.
func (k *Kernel) armedDeltas() []Tick {
	var out []Tick
	for p := k.vt[0].next; p != 0; p = k.vt[p].next {
		out = append(out, k.vt[p].delta)
	}
	return out
}
