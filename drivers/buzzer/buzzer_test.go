package buzzer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/kernel"
)

type fakeTone struct {
	k      *kernel.Kernel
	events []string
}

func (f *fakeTone) Start(freq uint32) error {
	f.events = append(f.events, fmt.Sprintf("start %d @%d", freq, f.k.Now()))
	return nil
}

func (f *fakeTone) Stop() error {
	f.events = append(f.events, fmt.Sprintf("stop @%d", f.k.Now()))
	return nil
}

func setup(t *testing.T) (*kernel.Kernel, *fakeTone, *Driver) {
	t.Helper()
	k, err := kernel.New(kernel.Config{Clock: kernel.ClockVirtual, Checks: true})
	require.NoError(t, err)
	tone := &fakeTone{k: k}
	d, err := New(k, tone, nil)
	require.NoError(t, err)
	tone.events = nil
	return k, tone, d
}

func run(t *testing.T, k *kernel.Kernel, fn func()) {
	t.Helper()
	_, err := k.CreateThread(kernel.NewWorkingArea(make([]byte, 64)), kernel.NormalPriority, "main",
		func(any) kernel.Msg { fn(); return kernel.MsgOK }, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx))
}

func TestPlaySoundBroadcastsSilent(t *testing.T) {
	k, tone, d := setup(t)
	var at uint64
	run(t, k, func() {
		_, err := k.RegisterID(&d.Silent, 0)
		assert.NoError(t, err)
		assert.NoError(t, d.PlaySound(440, 10))
		if !d.Playing() {
			t.Error("expected the tone to be playing")
		}
		k.WaitAny(kernel.EventBit(0))
		at = k.Now()
	})
	assert.Equal(t, uint64(10), at)
	assert.Equal(t, []string{"start 440 @0", "stop @10"}, tone.events)
}

func TestPlaySoundRestartCutsPreviousTone(t *testing.T) {
	k, tone, d := setup(t)
	var silences int
	run(t, k, func() {
		_, _ = k.RegisterID(&d.Silent, 0)
		_ = d.PlaySound(440, 10)
		k.Sleep(3)
		_ = d.PlaySound(880, 10)
		for {
			if _, msg := k.WaitAnyTimeout(kernel.EventBit(0), 50); msg != kernel.MsgOK {
				return
			}
			silences++
		}
	})
	assert.Equal(t, 1, silences)
	assert.Equal(t, []string{"start 440 @0", "stop @3", "start 880 @3", "stop @13"}, tone.events)
}

func TestPlaySoundWaitBlocks(t *testing.T) {
	k, tone, d := setup(t)
	var at uint64
	run(t, k, func() {
		assert.NoError(t, d.PlaySoundWait(1000, 7))
		at = k.Now()
	})
	assert.Equal(t, uint64(7), at)
	assert.Equal(t, []string{"stop @0", "start 1000 @0", "stop @7"}, tone.events)
}
