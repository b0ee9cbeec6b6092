package kernel

import "fmt"

// Priority orders threads; larger runs first.
type Priority uint8

const (
	IdlePriority    Priority = 0
	LowestPriority  Priority = 1
	NormalPriority  Priority = 128
	HighestPriority Priority = 255
)

// ThreadState is the scheduling state of a thread.
type ThreadState uint8

const (
	ThreadReady ThreadState = iota
	ThreadRunning
	ThreadSleeping
	ThreadWaitingEvent
	ThreadSuspended
	ThreadFinal
)

func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "READY"
	case ThreadRunning:
		return "RUNNING"
	case ThreadSleeping:
		return "SLEEPING"
	case ThreadWaitingEvent:
		return "WTEVENT"
	case ThreadSuspended:
		return "SUSPENDED"
	case ThreadFinal:
		return "FINAL"
	default:
		return fmt.Sprintf("ThreadState(%d)", uint8(s))
	}
}

// ThreadID is a handle to a thread slot. The low byte selects the slot and
// the high byte is a generation that invalidates handles to recycled slots.
// The zero ThreadID never names a thread.
type ThreadID uint16

func makeThreadID(slot int16, gen uint8) ThreadID {
	return ThreadID(uint16(gen)<<8 | uint16(slot))
}

func (id ThreadID) slot() int16 { return int16(id & 0xFF) }
func (id ThreadID) gen() uint8  { return uint8(id >> 8) }

// ThreadFunc is a thread body. The returned message is the thread's exit
// code, collected by Wait.
type ThreadFunc func(arg any) Msg

const nilSlot int16 = -1

type waitKind uint8

const (
	waitNone waitKind = iota
	waitStart
	waitAny
	waitAll
	waitFlags
	waitSem
	waitRef
	waitJoin
)

type waitDesc struct {
	kind     waitKind
	mask     EventMask
	flags    EventFlags
	listener ListenerID
	sem      *Semaphore
	ref      *ThreadRef
	owner    int16
}

// Thread is a thread control block. Thread records live in the kernel's
// thread table and are addressed through ThreadID.
type Thread struct {
	name  string
	prio  Priority
	state ThreadState
	gen   uint8
	used  bool

	// next/prev link the thread into exactly one queue: the ready list, a
	// semaphore queue or another thread's join queue.
	next, prev int16

	fn     ThreadFunc
	arg    any
	wa     *WorkingArea
	resume chan struct{}

	msg      Msg
	epending EventMask
	wait     waitDesc
	joinq    threadQueue
	// joined counts joiners woken by the exit that have not yet read msg.
	joined int16
}

const (
	stackGuardSize      = 16
	stackGuardFill byte = 0x55
	MinWorkingArea      = 2 * stackGuardSize
	unboundSlot         = nilSlot
)

// WorkingArea is caller-provided storage for one thread. A working area is
// bound to a single thread slot on first use and may be reused for a new
// thread only once its previous occupant is FINAL.
//
// The lowest bytes hold a guard pattern that is verified, when checks are
// enabled, every time the owning thread is switched out.
type WorkingArea struct {
	mem  []byte
	k    *Kernel
	slot int16
}

// NewWorkingArea wraps mem, which must be at least MinWorkingArea bytes.
func NewWorkingArea(mem []byte) *WorkingArea {
	if len(mem) < MinWorkingArea {
		panic(fmt.Sprintf("kernel: working area of %d bytes is smaller than %d", len(mem), MinWorkingArea))
	}
	return &WorkingArea{mem: mem, slot: unboundSlot}
}

// Stack is the usable part of the area, above the guard.
func (wa *WorkingArea) Stack() []byte { return wa.mem[stackGuardSize:] }

func (wa *WorkingArea) arm() {
	for i := range wa.mem[:stackGuardSize] {
		wa.mem[i] = stackGuardFill
	}
}

func (wa *WorkingArea) intact() bool {
	for _, b := range wa.mem[:stackGuardSize] {
		if b != stackGuardFill {
			return false
		}
	}
	return true
}

// CreateThread creates a thread and makes it ready, switching to it at once
// if it outranks the caller. Before Run it only queues the thread.
func (k *Kernel) CreateThread(wa *WorkingArea, prio Priority, name string, fn ThreadFunc, arg any) (ThreadID, error) {
	s := k.Lock()
	id, err := k.createI(wa, prio, name, fn, arg)
	if err == nil {
		k.readyI(id.slot(), MsgOK)
	}
	s.Unlock()
	return id, err
}

// CreateThread creates a thread in the SUSPENDED state; StartThread makes
// it ready.
func (l Locked) CreateThread(wa *WorkingArea, prio Priority, name string, fn ThreadFunc, arg any) (ThreadID, error) {
	l.check("CreateThread")
	return l.k.createI(wa, prio, name, fn, arg)
}

// StartThread readies a thread created with Locked.CreateThread.
func (l Locked) StartThread(id ThreadID) {
	l.check("StartThread")
	k := l.k
	i := k.slotOf(id, "StartThread")
	if k.threads[i].wait.kind != waitStart {
		k.fatalf("StartThread: thread %q already started", k.threads[i].name)
	}
	k.readyI(i, MsgOK)
}

func (k *Kernel) createI(wa *WorkingArea, prio Priority, name string, fn ThreadFunc, arg any) (ThreadID, error) {
	switch {
	case fn == nil:
		k.fatal("CreateThread: nil thread function")
	case wa == nil:
		k.fatal("CreateThread: nil working area")
	case prio == IdlePriority:
		k.fatal("CreateThread: priority 0 is reserved for idle")
	}

	slot := wa.slot
	if slot == unboundSlot {
		slot = k.allocSlot()
		if slot == nilSlot {
			return 0, ErrNoSlots
		}
		wa.k = k
		wa.slot = slot
	} else {
		if wa.k != k {
			k.fatal("CreateThread: working area belongs to another kernel")
		}
		if t := &k.threads[slot]; t.state != ThreadFinal || t.joined > 0 {
			k.fatalf("CreateThread: working area in use by %q (%s)", t.name, t.state)
		}
	}

	t := &k.threads[slot]
	t.gen++
	if t.gen == 0 {
		t.gen = 1
	}
	t.used = true
	t.name = name
	t.prio = prio
	t.state = ThreadSuspended
	t.fn = fn
	t.arg = arg
	t.wa = wa
	t.msg = MsgOK
	t.epending = 0
	t.joined = 0
	t.wait = waitDesc{kind: waitStart}
	t.next, t.prev = nilSlot, nilSlot
	wa.arm()

	k.wg.Add(1)
	go k.trampoline(slot)

	k.log.Debug().
		Str("thread", name).
		Int("slot", int(slot)).
		Int("prio", int(prio)).
		Log("thread created")
	return makeThreadID(slot, t.gen), nil
}

// allocSlot returns a never-used slot, else reclaims a FINAL slot nobody is
// joining. Reclaiming unbinds the previous working area; the generation bump
// in createI invalidates handles to the old occupant.
func (k *Kernel) allocSlot() int16 {
	for i := range k.threads[:k.idle] {
		if !k.threads[i].used {
			return int16(i)
		}
	}
	for i := range k.threads[:k.idle] {
		t := &k.threads[i]
		if t.state != ThreadFinal || !t.joinq.empty() || t.joined > 0 {
			continue
		}
		if t.wa != nil {
			t.wa.k = nil
			t.wa.slot = unboundSlot
			t.wa = nil
		}
		return int16(i)
	}
	return nilSlot
}

// slotOf validates a handle and returns its slot.
func (k *Kernel) slotOf(id ThreadID, op string) int16 {
	i := id.slot()
	if int(i) > int(k.idle) || !k.threads[i].used || k.threads[i].gen != id.gen() {
		k.fatalf("%s: stale thread handle %#04x", op, uint16(id))
	}
	return i
}

// Exit terminates the calling thread with msg. It does not return.
func (k *Kernel) Exit(msg Msg) {
	s := k.Lock()
	s.Exit(msg)
}

// Exit terminates the calling thread with msg. It does not return.
func (s Sys) Exit(msg Msg) {
	s.blocking("Exit")
	s.k.exitS(msg)
}

// Wait blocks until the thread id terminates and returns its exit message.
func (k *Kernel) Wait(id ThreadID) Msg {
	return k.WaitTimeout(id, TimeInfinite)
}

// WaitTimeout is Wait with a deadline. It returns MsgTimeout if id is still
// running after timeout ticks.
func (k *Kernel) WaitTimeout(id ThreadID, timeout Tick) Msg {
	s := k.Lock()
	msg := s.Wait(id, timeout)
	s.Unlock()
	return msg
}

// Wait blocks for at most timeout ticks until the thread id terminates and
// returns its exit message, or MsgTimeout.
func (s Sys) Wait(id ThreadID, timeout Tick) Msg {
	s.blocking("Wait")
	k := s.k
	i := k.slotOf(id, "Wait")
	if i == k.cur {
		k.fatal("Wait: thread waiting on itself")
	}
	t := &k.threads[i]
	if t.state != ThreadFinal {
		if timeout == TimeImmediate {
			return MsgTimeout
		}
		me := &k.threads[k.cur]
		me.wait = waitDesc{kind: waitJoin, owner: i}
		k.pushBack(&t.joinq, k.cur)
		if msg := k.goSleepTimeoutS(ThreadSuspended, timeout); msg != MsgOK {
			return msg
		}
		t.joined--
	}
	return t.msg
}

// Self returns the calling thread's handle. Before Run and in the idle loop
// this is the idle thread.
func (k *Kernel) Self() ThreadID {
	return makeThreadID(k.cur, k.threads[k.cur].gen)
}

// Self returns the handle of the thread that was running when the gate was
// taken.
func (l Locked) Self() ThreadID {
	return l.k.Self()
}

// ThreadInfo is a snapshot of one thread's control block.
type ThreadInfo struct {
	ID       ThreadID
	Name     string
	Priority Priority
	State    ThreadState
	Events   EventMask
	StackOK  bool
}

// Threads appends a snapshot of every live thread, idle included, to dst.
func (k *Kernel) Threads(dst []ThreadInfo) []ThreadInfo {
	s := k.Lock()
	dst = s.Threads(dst)
	s.Unlock()
	return dst
}

// Threads appends a snapshot of every live thread, idle included, to dst.
func (l Locked) Threads(dst []ThreadInfo) []ThreadInfo {
	l.check("Threads")
	k := l.k
	for i := range k.threads {
		t := &k.threads[i]
		if !t.used {
			continue
		}
		dst = append(dst, ThreadInfo{
			ID:       makeThreadID(int16(i), t.gen),
			Name:     t.name,
			Priority: t.prio,
			State:    t.state,
			Events:   t.epending,
			StackOK:  t.wa == nil || t.wa.intact(),
		})
	}
	return dst
}

// State returns the scheduling state of id.
func (k *Kernel) State(id ThreadID) ThreadState {
	s := k.Lock()
	st := k.threads[k.slotOf(id, "State")].state
	s.Unlock()
	return st
}

// Scratch returns the calling thread's working area stack, for use as
// per-thread scratch storage.
func (k *Kernel) Scratch() []byte {
	t := &k.threads[k.cur]
	if t.wa == nil {
		return nil
	}
	return t.wa.Stack()
}
