package can

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/hal"
	"tickos/kernel"
)

var lines = Lines{Tx: 1, Rx: 2, Error: 3, Wakeup: 4}

func setup(t *testing.T, mailboxes, fifo int) (*kernel.Kernel, *hal.LoopbackCAN, *Driver) {
	t.Helper()
	k, err := kernel.New(kernel.Config{Clock: kernel.ClockVirtual, Checks: true})
	require.NoError(t, err)
	ctl := hal.NewLoopbackCAN(mailboxes, fifo)
	return k, ctl, New(k, ctl, lines, nil)
}

func spawn(t *testing.T, k *kernel.Kernel, prio kernel.Priority, name string, fn func()) {
	t.Helper()
	_, err := k.CreateThread(kernel.NewWorkingArea(make([]byte, 64)), prio, name,
		func(any) kernel.Msg { fn(); return kernel.MsgOK }, nil)
	require.NoError(t, err)
}

func run(t *testing.T, k *kernel.Kernel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx))
}

func frame(id uint32) hal.CANFrame {
	return hal.CANFrame{ID: id, DLC: 1, Data: [8]byte{byte(id)}}
}

func TestLoopbackRoundTrip(t *testing.T) {
	k, _, d := setup(t, 3, 3)
	require.NoError(t, d.Start(hal.CANConfig{Bitrate: 500_000, Loopback: true}))
	var got []uint32
	spawn(t, k, kernel.NormalPriority, "node", func() {
		for id := uint32(1); id <= 3; id++ {
			assert.NoError(t, d.Transmit(frame(id), 10))
		}
		for i := 0; i < 3; i++ {
			f, err := d.Receive(10)
			if !assert.NoError(t, err) {
				return
			}
			got = append(got, f.ID)
		}
	})
	run(t, k)
	assert.Equal(t, []uint32{1, 2, 3}, got)
}

func TestTransmitBlocksUntilReaderDrains(t *testing.T) {
	k, _, d := setup(t, 1, 1)
	require.NoError(t, d.Start(hal.CANConfig{Bitrate: 500_000}))
	var sentAt []uint64
	var got []uint32
	spawn(t, k, 10, "writer", func() {
		for id := uint32(1); id <= 4; id++ {
			assert.NoError(t, d.Transmit(frame(id), kernel.TimeInfinite))
			sentAt = append(sentAt, k.Now())
		}
	})
	spawn(t, k, 5, "reader", func() {
		k.Sleep(5)
		for i := 0; i < 4; i++ {
			f, err := d.Receive(kernel.TimeInfinite)
			if !assert.NoError(t, err) {
				return
			}
			got = append(got, f.ID)
		}
	})
	run(t, k)
	assert.Equal(t, []uint32{1, 2, 3, 4}, got)
	assert.Equal(t, []uint64{0, 0, 5, 5}, sentAt)
}

func TestReceiveTimesOut(t *testing.T) {
	k, _, d := setup(t, 3, 3)
	require.NoError(t, d.Start(hal.CANConfig{Bitrate: 125_000}))
	var err error
	var at uint64
	spawn(t, k, kernel.NormalPriority, "reader", func() {
		_, err = d.Receive(10)
		at = k.Now()
	})
	run(t, k)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	assert.Equal(t, uint64(10), at)
}

func TestOverrunBroadcastsErrorFlags(t *testing.T) {
	k, ctl, d := setup(t, 1, 1)
	require.NoError(t, d.Start(hal.CANConfig{Bitrate: 125_000}))
	var flags kernel.EventFlags
	var msg kernel.Msg
	var status []uint32
	spawn(t, k, kernel.NormalPriority, "monitor", func() {
		id, err := k.Register(&d.ErrorEvent, kernel.EventBit(0), kernel.EventFlags(hal.CANOverrun))
		if !assert.NoError(t, err) {
			return
		}
		ctl.Inject(frame(1))
		ctl.Inject(frame(2))
		flags, msg = k.WaitFlags(id, kernel.EventFlags(hal.CANOverrun), 10)
		status = append(status, d.Status(), d.Status())
	})
	run(t, k)
	assert.Equal(t, kernel.MsgOK, msg)
	assert.Equal(t, kernel.EventFlags(hal.CANOverrun), flags)
	assert.Equal(t, []uint32{hal.CANOverrun, 0}, status)
}

func TestSleepAndBusWakeup(t *testing.T) {
	k, ctl, d := setup(t, 3, 3)
	require.NoError(t, d.Start(hal.CANConfig{Bitrate: 125_000}))
	var errs []error
	var states []State
	spawn(t, k, kernel.NormalPriority, "node", func() {
		_, _ = k.RegisterID(&d.SleepEvent, 0)
		_, _ = k.RegisterID(&d.WakeupEvent, 1)
		errs = append(errs, d.Sleep())
		k.WaitAny(kernel.EventBit(0))
		states = append(states, d.State())
		errs = append(errs, d.Transmit(frame(1), 5))

		ctl.Inject(frame(2))
		k.WaitAny(kernel.EventBit(1))
		states = append(states, d.State())
		errs = append(errs, d.Transmit(frame(3), 5))
	})
	run(t, k)
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	if !errors.Is(errs[1], ErrTimeout) {
		t.Fatalf("expected ErrTimeout while asleep, got %v", errs[1])
	}
	assert.NoError(t, errs[2])
	assert.Equal(t, []State{StateSleep, StateReady}, states)
}

func TestStopReleasesWaiters(t *testing.T) {
	k, _, d := setup(t, 3, 3)
	require.NoError(t, d.Start(hal.CANConfig{Bitrate: 125_000}))
	var err error
	var state State
	spawn(t, k, 10, "reader", func() {
		_, err = d.Receive(kernel.TimeInfinite)
	})
	spawn(t, k, 5, "stopper", func() {
		d.Stop()
		state = d.State()
	})
	run(t, k)
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	assert.Equal(t, StateStop, state)
}

// lostFrameCAN reports frames as ready but drops them on read.
type lostFrameCAN struct {
	*hal.LoopbackCAN
}

func (c lostFrameCAN) Receive() (hal.CANFrame, bool) {
	c.LoopbackCAN.Receive()
	return hal.CANFrame{}, false
}

func TestReceiveReportsLostFrame(t *testing.T) {
	k, err := kernel.New(kernel.Config{Clock: kernel.ClockVirtual, Checks: true})
	require.NoError(t, err)
	d := New(k, lostFrameCAN{hal.NewLoopbackCAN(3, 3)}, lines, nil)
	require.NoError(t, d.Start(hal.CANConfig{Bitrate: 500_000}))
	var rxErr error
	spawn(t, k, kernel.NormalPriority, "node", func() {
		assert.NoError(t, d.Transmit(frame(9), 10))
		_, rxErr = d.Receive(10)
	})
	run(t, k)
	if !errors.Is(rxErr, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", rxErr)
	}
}
