package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadPanicHaltsKernel(t *testing.T) {
	var infos []HaltInfo
	k := newVirtual(t, Config{OnHalt: func(info HaltInfo) { infos = append(infos, info) }})
	spawn(t, k, NormalPriority, "crasher", func() Msg {
		panic("boom")
	})
	spawn(t, k, LowestPriority, "bystander", func() Msg {
		t.Error("bystander should never run")
		return MsgOK
	})

	err := runKernel(t, k)
	var herr *HaltError
	if !errors.As(err, &herr) {
		t.Fatalf("expected *HaltError, got %v", err)
	}
	assert.Equal(t, "crasher", herr.Info.Thread)
	assert.Equal(t, "boom", herr.Info.Value)
	assert.NotEmpty(t, herr.Info.Stack)
	require.Len(t, infos, 1)
	assert.Equal(t, "thread panicked", infos[0].Reason)
	assert.True(t, k.Halted())
}

func TestHaltFromThread(t *testing.T) {
	k := newVirtual(t, Config{})
	spawn(t, k, NormalPriority, "quitter", func() Msg {
		s := k.Lock()
		s.Halt("giving up")
		return MsgOK
	})
	var herr *HaltError
	require.ErrorAs(t, runKernel(t, k), &herr)
	assert.Equal(t, "giving up", herr.Info.Reason)
	assert.Equal(t, `kernel halted in thread "quitter": giving up`, herr.Error())
}

func TestLockTwiceHalts(t *testing.T) {
	k := newVirtual(t, Config{})
	spawn(t, k, NormalPriority, "greedy", func() Msg {
		k.Lock()
		k.Lock()
		return MsgOK
	})
	var herr *HaltError
	require.ErrorAs(t, runKernel(t, k), &herr)
	assert.Equal(t, "Lock: called with the gate held", herr.Info.Reason)
}

func TestStaleTokenHalts(t *testing.T) {
	k := newVirtual(t, Config{})
	spawn(t, k, NormalPriority, "sloppy", func() Msg {
		s := k.Lock()
		s.Unlock()
		k.Lock().Unlock()
		s.Unlock()
		return MsgOK
	})
	var herr *HaltError
	require.ErrorAs(t, runKernel(t, k), &herr)
	assert.Equal(t, "Unlock: gate not held", herr.Info.Reason)
}

func TestStackGuardOverwriteHalts(t *testing.T) {
	k := newVirtual(t, Config{})
	wa := newWA()
	_, err := k.CreateThread(wa, NormalPriority, "overflow", func(any) Msg {
		wa.mem[0] = 0
		k.Sleep(1)
		return MsgOK
	}, nil)
	require.NoError(t, err)
	var herr *HaltError
	require.ErrorAs(t, runKernel(t, k), &herr)
	assert.Contains(t, herr.Info.Reason, "stack guard")
}

func TestStaleThreadHandleHalts(t *testing.T) {
	k := newVirtual(t, Config{MaxThreads: 2})
	wa := newWA()
	spawn(t, k, 10, "owner", func() Msg {
		first, _ := k.CreateThread(wa, 5, "first", func(any) Msg { return MsgOK }, nil)
		k.Wait(first)
		second, _ := k.CreateThread(wa, 5, "second", func(any) Msg { return MsgOK }, nil)
		if first.slot() != second.slot() {
			t.Errorf("expected slot reuse")
		}
		k.State(first)
		return MsgOK
	})
	var herr *HaltError
	require.ErrorAs(t, runKernel(t, k), &herr)
	assert.Contains(t, herr.Info.Reason, "stale thread handle")
}

func TestBlockingInsideTimerCallbackHalts(t *testing.T) {
	k := newVirtual(t, Config{})
	ids := newTimers(t, k, 1)
	spawn(t, k, NormalPriority, "t", func() Msg {
		k.ArmTimer(ids[0], 1, func(l Locked, _ any) {
			l.Kernel().Sleep(1)
		}, nil)
		k.Sleep(5)
		return MsgOK
	})
	var herr *HaltError
	require.ErrorAs(t, runKernel(t, k), &herr)
	assert.Equal(t, "Lock: called from interrupt context", herr.Info.Reason)
}
