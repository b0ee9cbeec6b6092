package kernel

import "math/bits"

// EventMask is a set of per-thread event bits.
type EventMask uint32

// EventFlags are source-defined flags carried from a broadcast to listeners.
type EventFlags uint32

// AllEvents matches every event bit.
const AllEvents = ^EventMask(0)

// EventBit returns the mask for event id.
func EventBit(id int) EventMask { return 1 << uint(id) }

// EventSource is a broadcaster. The zero value has no listeners.
type EventSource struct {
	first ListenerID
}

// Empty reports whether nobody is registered on s.
func (s *EventSource) Empty() bool { return s.first == 0 }

// InitSource empties s. Listeners still registered on it are orphaned, so
// it must only be used on a source nobody listens to.
func InitSource(s *EventSource) { *s = EventSource{} }

// ListenerID names a listener record binding a thread to a source. The zero
// value names nothing.
type ListenerID uint16

type listener struct {
	used   bool
	next   ListenerID
	src    *EventSource
	thread int16
	gen    uint8
	events EventMask
	wflags EventFlags
	flags  EventFlags
}

func (k *Kernel) initListeners(n int) {
	k.listeners = make([]listener, n)
	for i := range k.listeners {
		k.listeners[i].next = ListenerID(i + 2)
	}
	if n > 0 {
		k.listeners[n-1].next = 0
		k.freeL = 1
	}
}

func (k *Kernel) listenerOf(id ListenerID, op string) *listener {
	if id == 0 || int(id) > len(k.listeners) || !k.listeners[id-1].used {
		k.fatalf("%s: unknown listener %d", op, id)
	}
	return &k.listeners[id-1]
}

// Register adds a listener for the calling thread to src. A broadcast with
// any of wflags (or a flagless broadcast) sets events in the thread.
func (k *Kernel) Register(src *EventSource, events EventMask, wflags EventFlags) (ListenerID, error) {
	s := k.Lock()
	id, err := s.Register(src, events, wflags)
	s.Unlock()
	return id, err
}

// RegisterMask registers with every flag of interest.
func (k *Kernel) RegisterMask(src *EventSource, events EventMask) (ListenerID, error) {
	return k.Register(src, events, ^EventFlags(0))
}

// RegisterID registers event id with every flag of interest.
func (k *Kernel) RegisterID(src *EventSource, id int) (ListenerID, error) {
	return k.Register(src, EventBit(id), ^EventFlags(0))
}

// Register adds a listener for the calling thread to src.
func (s Sys) Register(src *EventSource, events EventMask, wflags EventFlags) (ListenerID, error) {
	s.checkS("Register")
	return s.k.registerI(src, s.k.cur, events, wflags)
}

// RegisterThread adds a listener for thread id to src. It is the form
// usable from interrupt handlers and timer callbacks.
func (l Locked) RegisterThread(src *EventSource, id ThreadID, events EventMask, wflags EventFlags) (ListenerID, error) {
	l.check("RegisterThread")
	i := l.k.slotOf(id, "RegisterThread")
	if i == l.k.idle {
		l.k.fatal("RegisterThread: the idle thread cannot listen")
	}
	return l.k.registerI(src, i, events, wflags)
}

func (k *Kernel) registerI(src *EventSource, slot int16, events EventMask, wflags EventFlags) (ListenerID, error) {
	id := k.freeL
	if id == 0 {
		return 0, ErrNoListeners
	}
	el := &k.listeners[id-1]
	k.freeL = el.next
	*el = listener{
		used:   true,
		next:   src.first,
		src:    src,
		thread: slot,
		gen:    k.threads[slot].gen,
		events: events,
		wflags: wflags,
	}
	src.first = id
	return id, nil
}

// Unregister removes a listener from src and frees it. Unknown listeners are
// ignored.
func (k *Kernel) Unregister(src *EventSource, id ListenerID) {
	s := k.Lock()
	s.Unregister(src, id)
	s.Unlock()
}

// Unregister removes a listener from src and frees it.
func (l Locked) Unregister(src *EventSource, id ListenerID) {
	l.check("Unregister")
	k := l.k
	prev := &src.first
	for cur := src.first; cur != 0; cur = *prev {
		el := &k.listeners[cur-1]
		if cur == id {
			*prev = el.next
			*el = listener{next: k.freeL}
			k.freeL = id
			return
		}
		prev = &el.next
	}
}

// IsListening reports whether src has any listener.
func (k *Kernel) IsListening(src *EventSource) bool {
	s := k.Lock()
	ok := src.first != 0
	s.Unlock()
	return ok
}

// BroadcastFlags notifies every listener on src.
func (k *Kernel) BroadcastFlags(src *EventSource, flags EventFlags) {
	s := k.Lock()
	s.BroadcastFlags(src, flags)
	s.Unlock()
}

// Broadcast notifies every listener on src without flags.
func (k *Kernel) Broadcast(src *EventSource) {
	k.BroadcastFlags(src, 0)
}

// BroadcastFlags notifies every listener on src. Each listener accumulates
// the flags it wants; its thread is signalled if any wanted flag is present
// or the broadcast carries no flags at all.
func (l Locked) BroadcastFlags(src *EventSource, flags EventFlags) {
	l.check("BroadcastFlags")
	k := l.k
	for id := src.first; id != 0; id = k.listeners[id-1].next {
		k.notifyI(id, flags)
	}
}

// Broadcast notifies every listener on src without flags.
func (l Locked) Broadcast(src *EventSource) {
	l.BroadcastFlags(src, 0)
}

func (k *Kernel) notifyI(id ListenerID, flags EventFlags) {
	el := &k.listeners[id-1]
	hit := flags & el.wflags
	el.flags |= hit
	if flags != 0 && hit == 0 {
		return
	}
	i := el.thread
	t := &k.threads[i]
	if t.gen != el.gen || t.state == ThreadFinal {
		return
	}
	if t.state == ThreadWaitingEvent && t.wait.kind == waitFlags &&
		t.wait.listener == id && el.flags&t.wait.flags != 0 {
		k.readyI(i, MsgOK)
	}
	k.signalI(i, el.events)
}

// SignalListener sets a listener's events in its thread, with flags, as if
// the listener's source had broadcast.
func (l Locked) SignalListener(id ListenerID, flags EventFlags) {
	l.check("SignalListener")
	l.k.listenerOf(id, "SignalListener")
	l.k.notifyI(id, flags)
}

// SignalThread sets events in a thread, waking it if that satisfies its
// wait.
func (k *Kernel) SignalThread(id ThreadID, events EventMask) {
	s := k.Lock()
	s.SignalThread(id, events)
	s.Unlock()
}

// SignalThread sets events in a thread, waking it if that satisfies its
// wait.
func (l Locked) SignalThread(id ThreadID, events EventMask) {
	l.check("SignalThread")
	l.k.signalI(l.k.slotOf(id, "SignalThread"), events)
}

func (k *Kernel) signalI(i int16, events EventMask) {
	t := &k.threads[i]
	t.epending |= events
	if t.state != ThreadWaitingEvent {
		return
	}
	switch t.wait.kind {
	case waitAny:
		if t.epending&t.wait.mask != 0 {
			k.readyI(i, MsgOK)
		}
	case waitAll:
		if t.epending&t.wait.mask == t.wait.mask {
			k.readyI(i, MsgOK)
		}
	}
}

// AddEvents sets events in the calling thread and returns its pending set.
func (k *Kernel) AddEvents(events EventMask) EventMask {
	s := k.Lock()
	t := &k.threads[k.cur]
	t.epending |= events
	m := t.epending
	s.Unlock()
	return m
}

// GetAndClearEvents clears mask from the calling thread's pending events and
// returns the bits that were set.
func (k *Kernel) GetAndClearEvents(mask EventMask) EventMask {
	s := k.Lock()
	t := &k.threads[k.cur]
	m := t.epending & mask
	t.epending &^= m
	s.Unlock()
	return m
}

// GetAndClearFlags returns and clears the flags accumulated on a listener.
func (k *Kernel) GetAndClearFlags(id ListenerID) EventFlags {
	s := k.Lock()
	f := s.GetAndClearFlags(id)
	s.Unlock()
	return f
}

// GetAndClearFlags returns and clears the flags accumulated on a listener.
func (l Locked) GetAndClearFlags(id ListenerID) EventFlags {
	l.check("GetAndClearFlags")
	el := l.k.listenerOf(id, "GetAndClearFlags")
	f := el.flags
	el.flags = 0
	return f
}

// WaitOne waits for any event in mask and consumes only the lowest one.
func (k *Kernel) WaitOne(mask EventMask) EventMask {
	m, _ := k.WaitOneTimeout(mask, TimeInfinite)
	return m
}

// WaitAny waits for any event in mask and consumes every matching one.
func (k *Kernel) WaitAny(mask EventMask) EventMask {
	m, _ := k.WaitAnyTimeout(mask, TimeInfinite)
	return m
}

// WaitAll waits until every event in mask is pending and consumes them.
func (k *Kernel) WaitAll(mask EventMask) EventMask {
	m, _ := k.WaitAllTimeout(mask, TimeInfinite)
	return m
}

// WaitOneTimeout is WaitOne bounded by timeout. On timeout it returns 0 and
// MsgTimeout.
func (k *Kernel) WaitOneTimeout(mask EventMask, timeout Tick) (EventMask, Msg) {
	s := k.Lock()
	m, msg := s.waitEvents(waitAny, mask, timeout, "WaitOne")
	if m != 0 {
		low := m & -m
		k.threads[k.cur].epending |= m &^ low
		m = low
	}
	s.Unlock()
	return m, msg
}

// WaitAnyTimeout is WaitAny bounded by timeout.
func (k *Kernel) WaitAnyTimeout(mask EventMask, timeout Tick) (EventMask, Msg) {
	s := k.Lock()
	m, msg := s.WaitAny(mask, timeout)
	s.Unlock()
	return m, msg
}

// WaitAllTimeout is WaitAll bounded by timeout.
func (k *Kernel) WaitAllTimeout(mask EventMask, timeout Tick) (EventMask, Msg) {
	s := k.Lock()
	m, msg := s.WaitAll(mask, timeout)
	s.Unlock()
	return m, msg
}

// WaitAny waits for any event in mask and consumes every matching one.
func (s Sys) WaitAny(mask EventMask, timeout Tick) (EventMask, Msg) {
	return s.waitEvents(waitAny, mask, timeout, "WaitAny")
}

// WaitAll waits until every event in mask is pending and consumes them.
func (s Sys) WaitAll(mask EventMask, timeout Tick) (EventMask, Msg) {
	return s.waitEvents(waitAll, mask, timeout, "WaitAll")
}

func (s Sys) waitEvents(kind waitKind, mask EventMask, timeout Tick, op string) (EventMask, Msg) {
	s.blocking(op)
	k := s.k
	if mask == 0 {
		k.fatalf("%s: empty mask", op)
	}
	t := &k.threads[k.cur]
	satisfied := func() bool {
		if kind == waitAll {
			return t.epending&mask == mask
		}
		return t.epending&mask != 0
	}
	if !satisfied() {
		if timeout == TimeImmediate {
			return 0, MsgTimeout
		}
		t.wait = waitDesc{kind: kind, mask: mask}
		if msg := k.goSleepTimeoutS(ThreadWaitingEvent, timeout); msg != MsgOK {
			return 0, msg
		}
	}
	m := t.epending & mask
	t.epending &^= m
	return m, MsgOK
}

// WaitFlags waits until the calling thread's listener id has accumulated any
// of mask, then consumes and returns those flags.
func (k *Kernel) WaitFlags(id ListenerID, mask EventFlags, timeout Tick) (EventFlags, Msg) {
	s := k.Lock()
	f, msg := s.WaitFlags(id, mask, timeout)
	s.Unlock()
	return f, msg
}

// WaitFlags waits until the calling thread's listener id has accumulated any
// of mask, then consumes and returns those flags.
func (s Sys) WaitFlags(id ListenerID, mask EventFlags, timeout Tick) (EventFlags, Msg) {
	s.blocking("WaitFlags")
	k := s.k
	el := k.listenerOf(id, "WaitFlags")
	if el.thread != k.cur {
		k.fatal("WaitFlags: listener belongs to another thread")
	}
	if f := el.flags & mask; f != 0 {
		el.flags &^= f
		return f, MsgOK
	}
	if timeout == TimeImmediate {
		return 0, MsgTimeout
	}
	k.threads[k.cur].wait = waitDesc{kind: waitFlags, listener: id, flags: mask}
	if msg := k.goSleepTimeoutS(ThreadWaitingEvent, timeout); msg != MsgOK {
		return 0, msg
	}
	f := el.flags & mask
	el.flags &^= f
	return f, MsgOK
}

// Dispatch calls handlers[i] for every bit i set in mask, lowest bit first.
// Bits without a handler are skipped.
func Dispatch(handlers []func(id int), mask EventMask) {
	for mask != 0 {
		i := bits.TrailingZeros32(uint32(mask))
		mask &^= 1 << uint(i)
		if i < len(handlers) && handlers[i] != nil {
			handlers[i](i)
		}
	}
}
