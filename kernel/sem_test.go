package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreWakesFIFO(t *testing.T) {
	k := newVirtual(t, Config{})
	var sem Semaphore
	var order []string
	for _, name := range []string{"A", "B", "C"} {
		name := name
		spawn(t, k, 10, name, func() Msg {
			if msg := k.SemWait(&sem); msg != MsgOK {
				t.Errorf("expected MsgOK, got %s", msg)
			}
			order = append(order, name)
			return MsgOK
		})
	}
	spawn(t, k, 5, "signaller", func() Msg {
		s := k.Lock()
		if n := s.SemCount(&sem); n != -3 {
			t.Errorf("expected count -3 with three waiters, got %d", n)
		}
		s.Unlock()
		for i := 0; i < 3; i++ {
			k.SemSignal(&sem)
		}
		return MsgOK
	})
	require.NoError(t, runKernel(t, k))
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestSemaphoreCountingNoBlock(t *testing.T) {
	k := newVirtual(t, Config{})
	var sem Semaphore
	InitSemaphore(&sem, 2)
	var msgs []Msg
	spawn(t, k, NormalPriority, "t", func() Msg {
		msgs = append(msgs, k.SemWaitTimeout(&sem, TimeImmediate))
		msgs = append(msgs, k.SemWaitTimeout(&sem, TimeImmediate))
		msgs = append(msgs, k.SemWaitTimeout(&sem, TimeImmediate))
		return MsgOK
	})
	require.NoError(t, runKernel(t, k))
	assert.Equal(t, []Msg{MsgOK, MsgOK, MsgTimeout}, msgs)
	assert.Equal(t, int32(0), sem.count)
}

func TestSemaphoreTimeoutRestoresCount(t *testing.T) {
	k := newVirtual(t, Config{})
	var sem Semaphore
	var msg Msg
	var at uint64
	spawn(t, k, NormalPriority, "t", func() Msg {
		msg = k.SemWaitTimeout(&sem, 5)
		at = k.Now()
		return MsgOK
	})
	require.NoError(t, runKernel(t, k))
	assert.Equal(t, MsgTimeout, msg)
	assert.Equal(t, uint64(5), at)
	assert.Equal(t, int32(0), sem.count)
	assert.True(t, sem.queue.empty())
}

func TestSemaphoreReset(t *testing.T) {
	k := newVirtual(t, Config{})
	var sem Semaphore
	var msgs []Msg
	for i := 0; i < 2; i++ {
		spawn(t, k, 10, "waiter", func() Msg {
			msgs = append(msgs, k.SemWait(&sem))
			return MsgOK
		})
	}
	spawn(t, k, 5, "resetter", func() Msg {
		k.SemReset(&sem, 1)
		return MsgOK
	})
	require.NoError(t, runKernel(t, k))
	assert.Equal(t, []Msg{MsgReset, MsgReset}, msgs)
	assert.Equal(t, int32(1), sem.count)
}

func TestMailboxOrderAndBackpressure(t *testing.T) {
	k := newVirtual(t, Config{})
	mb := NewMailbox(make([]int, 2))
	var got []int
	spawn(t, k, 5, "producer", func() Msg {
		for i := 1; i <= 5; i++ {
			if msg := mb.Post(k, i, TimeInfinite); msg != MsgOK {
				t.Errorf("expected MsgOK posting %d, got %s", i, msg)
			}
		}
		return MsgOK
	})
	spawn(t, k, 4, "consumer", func() Msg {
		for i := 0; i < 5; i++ {
			v, msg := mb.Fetch(k, 20)
			if msg != MsgOK {
				t.Errorf("expected MsgOK fetching, got %s", msg)
				return MsgOK
			}
			got = append(got, v)
		}
		return MsgOK
	})
	require.NoError(t, runKernel(t, k))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestMailboxNonBlocking(t *testing.T) {
	k := newVirtual(t, Config{})
	mb := NewMailbox(make([]string, 1))
	s := k.Lock()
	assert.Equal(t, MsgOK, mb.PostI(s.Locked, "a"))
	assert.Equal(t, MsgTimeout, mb.PostI(s.Locked, "b"))
	assert.Equal(t, 1, mb.Len(s.Locked))
	v, msg := mb.FetchI(s.Locked)
	assert.Equal(t, MsgOK, msg)
	assert.Equal(t, "a", v)
	_, msg = mb.FetchI(s.Locked)
	assert.Equal(t, MsgTimeout, msg)
	s.Unlock()
}

func TestMailboxFetchTimeoutAndReset(t *testing.T) {
	k := newVirtual(t, Config{})
	ids := newTimers(t, k, 1)
	mb := NewMailbox(make([]int, 4))
	var msgs []Msg
	spawn(t, k, NormalPriority, "consumer", func() Msg {
		_, msg := mb.Fetch(k, 3)
		msgs = append(msgs, msg)
		k.ArmTimer(ids[0], 2, func(l Locked, _ any) { mb.Reset(l) }, nil)
		_, msg = mb.Fetch(k, TimeInfinite)
		msgs = append(msgs, msg)
		return MsgOK
	})
	require.NoError(t, runKernel(t, k))
	assert.Equal(t, []Msg{MsgTimeout, MsgReset}, msgs)
}
