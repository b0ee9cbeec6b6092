package selftest

import (
	"time"

	"tickos/kernel"
)

// Cases is the default sequence.
var Cases = []Case{
	{Name: "events/registration", Setup: eventRegistration},
	{Name: "events/dispatch", Setup: eventDispatch},
	{Name: "events/wait-one", Setup: eventWaitOne},
	{Name: "events/wait-any", Setup: eventWaitAny},
	{Name: "events/wait-all", Setup: eventWaitAll},
	{Name: "events/flags", Setup: eventFlags},
	{Name: "timers/order", Setup: timerOrder},
	{Name: "sched/priority", Setup: priorityOrder},
	{Name: "sched/sleep", Setup: sleepAccuracy},
	{Name: "sem/fifo", Setup: semaphoreFIFO},
}

func eventRegistration(k *kernel.Kernel, t *T) {
	var src kernel.EventSource
	t.Spawn(kernel.NormalPriority, "main", func() {
		kernel.InitSource(&src)
		t.Assert(!k.IsListening(&src), "new source has listeners")
		l1, err1 := k.RegisterMask(&src, kernel.EventBit(1))
		l2, err2 := k.RegisterMask(&src, kernel.EventBit(2))
		t.Assert(err1 == nil && err2 == nil, "register: %v %v", err1, err2)
		t.Assert(k.IsListening(&src), "no listener after register")
		k.Unregister(&src, l1)
		t.Assert(k.IsListening(&src), "no listener after first unregister")
		k.Unregister(&src, l2)
		t.Assert(!k.IsListening(&src), "listener left after unregister")
	})
}

func eventDispatch(k *kernel.Kernel, t *T) {
	handlers := []func(int){
		func(int) { t.Emit('A') },
		func(int) { t.Emit('B') },
		func(int) { t.Emit('C') },
	}
	t.Spawn(kernel.NormalPriority, "main", func() {
		kernel.Dispatch(handlers, 7)
		t.Sequence("ABC")
		kernel.Dispatch(handlers, 5)
		t.Sequence("AC")
	})
}

// signaller adds events to target after delay.
func signaller(k *kernel.Kernel, t *T, target *kernel.ThreadID, delay time.Duration, events kernel.EventMask) {
	t.Spawn(kernel.NormalPriority-1, "signaller", func() {
		k.Sleep(k.Ticks(delay))
		k.SignalThread(*target, events)
	})
}

func eventWaitOne(k *kernel.Kernel, t *T) {
	var main kernel.ThreadID
	main = t.Spawn(kernel.NormalPriority, "main", func() {
		k.AddEvents(5)
		t.Assert(k.WaitOne(kernel.AllEvents) == 1, "expected bit 0 first")
		t.Assert(k.WaitOne(kernel.AllEvents) == 4, "expected bit 2 second")
		start := k.Now()
		got := k.WaitOne(kernel.AllEvents)
		t.Assert(got == 2, "expected bit 1 from the signaller, got %b", got)
		t.Assert(k.Now()-start == uint64(k.Ticks(50*time.Millisecond)), "woke at %d", k.Now()-start)
		t.Assert(k.GetAndClearEvents(kernel.AllEvents) == 0, "events left over")
	})
	signaller(k, t, &main, 50*time.Millisecond, 2)
}

func eventWaitAny(k *kernel.Kernel, t *T) {
	var main kernel.ThreadID
	main = t.Spawn(kernel.NormalPriority, "main", func() {
		k.AddEvents(5)
		t.Assert(k.WaitAny(kernel.AllEvents) == 5, "expected both pending bits")
		got, msg := k.WaitAnyTimeout(kernel.AllEvents, kernel.TimeImmediate)
		t.Assert(got == 0 && msg == kernel.MsgTimeout, "expected immediate timeout, got %b %s", got, msg)
		got = k.WaitAny(kernel.AllEvents)
		t.Assert(got == 5, "expected signalled bits, got %b", got)
	})
	signaller(k, t, &main, 50*time.Millisecond, 5)
}

func eventWaitAll(k *kernel.Kernel, t *T) {
	var main kernel.ThreadID
	main = t.Spawn(kernel.NormalPriority, "main", func() {
		k.AddEvents(1)
		start := k.Now()
		got := k.WaitAll(5)
		t.Assert(got == 5, "expected both bits, got %b", got)
		t.Assert(k.Now()-start >= uint64(k.Ticks(50*time.Millisecond)), "WaitAll returned before the second bit")
	})
	signaller(k, t, &main, 50*time.Millisecond, 4)
}

func eventFlags(k *kernel.Kernel, t *T) {
	var src kernel.EventSource
	timer, err := k.NewTimer()
	if err != nil {
		t.Errorf("timer: %v", err)
		return
	}
	t.Spawn(kernel.NormalPriority, "main", func() {
		id, err := k.Register(&src, kernel.EventBit(0), 0b011)
		if err != nil {
			t.Errorf("register: %v", err)
			return
		}
		k.ArmTimer(timer, 10, func(l kernel.Locked, _ any) { l.BroadcastFlags(&src, 0b100) }, nil)
		flags, msg := k.WaitFlags(id, 0b011, 20)
		t.Assert(flags == 0 && msg == kernel.MsgTimeout, "unwanted flags woke the listener: %b %s", flags, msg)
		t.Assert(k.Now() == 20, "timeout at %d, expected 20", k.Now())
		k.ArmTimer(timer, 5, func(l kernel.Locked, _ any) { l.BroadcastFlags(&src, 0b110) }, nil)
		flags, msg = k.WaitFlags(id, 0b011, kernel.TimeInfinite)
		t.Assert(flags == 0b010 && msg == kernel.MsgOK, "expected flags 010, got %b %s", flags, msg)
		k.Unregister(&src, id)
	})
}

func timerOrder(k *kernel.Kernel, t *T) {
	delays := map[byte]kernel.Tick{'D': 40, 'B': 20, 'A': 10, 'E': 50, 'C': 30}
	var ids []kernel.TimerID
	for range delays {
		id, err := k.NewTimer()
		if err != nil {
			t.Errorf("timer: %v", err)
			return
		}
		ids = append(ids, id)
	}
	t.Spawn(kernel.NormalPriority, "main", func() {
		i := 0
		for tok, d := range delays {
			k.ArmTimer(ids[i], d, func(_ kernel.Locked, arg any) { t.Emit(arg.(byte)) }, tok)
			i++
		}
		k.Sleep(60)
		t.Sequence("ABCDE")
	})
}

func priorityOrder(k *kernel.Kernel, t *T) {
	for _, p := range []struct {
		tok  byte
		prio kernel.Priority
	}{{'C', 3}, {'E', 1}, {'A', 5}, {'D', 2}, {'B', 4}} {
		tok := p.tok
		t.Spawn(p.prio, string(tok), func() { t.Emit(tok) })
	}
	t.Spawn(kernel.Priority(1), "check", func() {
		t.Sequence("ABCDE")
	})
}

func sleepAccuracy(k *kernel.Kernel, t *T) {
	t.Spawn(kernel.NormalPriority, "main", func() {
		for _, d := range []kernel.Tick{1, 7, 100} {
			start := k.Now()
			k.Sleep(d)
			t.Assert(k.Now()-start == uint64(d), "slept %d ticks, expected %d", k.Now()-start, d)
		}
		k.SleepUntil(k.Now() + 3)
		t.Assert(k.Now() == 111, "SleepUntil woke at %d", k.Now())
	})
}

func semaphoreFIFO(k *kernel.Kernel, t *T) {
	var sem kernel.Semaphore
	for _, tok := range []byte("ABC") {
		tok := tok
		t.Spawn(kernel.NormalPriority+1, string(tok), func() {
			if msg := k.SemWait(&sem); msg != kernel.MsgOK {
				t.Errorf("%c: %s", tok, msg)
			}
			t.Emit(tok)
		})
	}
	t.Spawn(kernel.NormalPriority, "signaller", func() {
		for i := 0; i < 3; i++ {
			k.SemSignal(&sem)
		}
		t.Sequence("ABC")
	})
}
