package kernel

// Semaphore is a counting semaphore with a FIFO wait queue. A negative count
// is the number of queued waiters.
type Semaphore struct {
	count int32
	queue threadQueue
}

// InitSemaphore sets the initial count. It must not be called while threads
// wait on s. The zero Semaphore has count 0.
func InitSemaphore(s *Semaphore, n int32) {
	s.count = n
}

// SemCount returns the current count.
func (l Locked) SemCount(sem *Semaphore) int32 {
	l.check("SemCount")
	return sem.count
}

// SemWait takes sem, blocking while it is unavailable.
func (k *Kernel) SemWait(sem *Semaphore) Msg {
	return k.SemWaitTimeout(sem, TimeInfinite)
}

// SemWaitTimeout takes sem, blocking for at most timeout ticks. It returns
// MsgOK, MsgTimeout or MsgReset.
func (k *Kernel) SemWaitTimeout(sem *Semaphore, timeout Tick) Msg {
	s := k.Lock()
	msg := s.SemWait(sem, timeout)
	s.Unlock()
	return msg
}

// SemWait takes sem, blocking for at most timeout ticks.
func (s Sys) SemWait(sem *Semaphore, timeout Tick) Msg {
	s.blocking("SemWait")
	k := s.k
	sem.count--
	if sem.count >= 0 {
		return MsgOK
	}
	if timeout == TimeImmediate {
		sem.count++
		return MsgTimeout
	}
	k.threads[k.cur].wait = waitDesc{kind: waitSem, sem: sem}
	k.pushBack(&sem.queue, k.cur)
	return k.goSleepTimeoutS(ThreadSuspended, timeout)
}

// SemSignal releases sem, waking the oldest waiter.
func (k *Kernel) SemSignal(sem *Semaphore) {
	s := k.Lock()
	s.SemSignal(sem)
	s.Unlock()
}

// SemSignal releases sem, waking the oldest waiter.
func (l Locked) SemSignal(sem *Semaphore) {
	l.check("SemSignal")
	sem.count++
	if sem.count <= 0 {
		l.k.readyI(l.k.popFront(&sem.queue), MsgOK)
	}
}

// SemReset sets the count to n and wakes every waiter with MsgReset.
func (k *Kernel) SemReset(sem *Semaphore, n int32) {
	s := k.Lock()
	s.SemReset(sem, n)
	s.Unlock()
}

// SemReset sets the count to n and wakes every waiter with MsgReset.
func (l Locked) SemReset(sem *Semaphore, n int32) {
	l.check("SemReset")
	k := l.k
	for i := k.popFront(&sem.queue); i != nilSlot; i = k.popFront(&sem.queue) {
		k.readyI(i, MsgReset)
	}
	sem.count = n
}

// Mailbox is a bounded FIFO of T backed by caller storage, with blocking
// post and fetch.
type Mailbox[T any] struct {
	head, tail uint32
	slots      []T
	full, free Semaphore
}

// NewMailbox returns a mailbox whose capacity is len(buf).
func NewMailbox[T any](buf []T) *Mailbox[T] {
	mb := &Mailbox[T]{slots: buf}
	InitSemaphore(&mb.full, 0)
	InitSemaphore(&mb.free, int32(len(buf)))
	return mb
}

// Post appends v, waiting up to timeout for room.
func (mb *Mailbox[T]) Post(k *Kernel, v T, timeout Tick) Msg {
	s := k.Lock()
	msg := s.SemWait(&mb.free, timeout)
	if msg == MsgOK {
		mb.put(s.Locked, v)
	}
	s.Unlock()
	return msg
}

// PostI appends v if there is room, without blocking.
func (mb *Mailbox[T]) PostI(l Locked, v T) Msg {
	l.check("PostI")
	if mb.free.count <= 0 {
		return MsgTimeout
	}
	mb.free.count--
	mb.put(l, v)
	return MsgOK
}

func (mb *Mailbox[T]) put(l Locked, v T) {
	mb.slots[mb.head%uint32(len(mb.slots))] = v
	mb.head++
	l.SemSignal(&mb.full)
}

// Fetch removes the oldest entry, waiting up to timeout for one.
func (mb *Mailbox[T]) Fetch(k *Kernel, timeout Tick) (T, Msg) {
	var v T
	s := k.Lock()
	msg := s.SemWait(&mb.full, timeout)
	if msg == MsgOK {
		v = mb.take(s.Locked)
	}
	s.Unlock()
	return v, msg
}

// FetchI removes the oldest entry if there is one, without blocking.
func (mb *Mailbox[T]) FetchI(l Locked) (T, Msg) {
	l.check("FetchI")
	var v T
	if mb.full.count <= 0 {
		return v, MsgTimeout
	}
	mb.full.count--
	return mb.take(l), MsgOK
}

func (mb *Mailbox[T]) take(l Locked) T {
	var zero T
	i := mb.tail % uint32(len(mb.slots))
	v := mb.slots[i]
	mb.slots[i] = zero
	mb.tail++
	l.SemSignal(&mb.free)
	return v
}

// Reset empties the mailbox and wakes every waiter with MsgReset.
func (mb *Mailbox[T]) Reset(l Locked) {
	l.check("Reset")
	clear(mb.slots)
	mb.head, mb.tail = 0, 0
	l.SemReset(&mb.full, 0)
	l.SemReset(&mb.free, int32(len(mb.slots)))
}

// Len returns the number of queued entries.
func (mb *Mailbox[T]) Len(l Locked) int {
	l.check("Len")
	return int(mb.head - mb.tail)
}
