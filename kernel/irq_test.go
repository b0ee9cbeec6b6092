package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// runExternal starts k on the external clock and returns a stop function
// that cancels it and reports Run's result.
func runExternal(t *testing.T, k *Kernel) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- k.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
			return nil
		}
	}
}

func TestIRQSignalsSemaphore(t *testing.T) {
	k, err := New(Config{Checks: true})
	require.NoError(t, err)

	var sem Semaphore
	const line IRQ = 5
	k.AttachIRQ(line, func(l Locked) { l.SemSignal(&sem) })

	done := make(chan Msg, 1)
	spawn(t, k, NormalPriority, "waiter", func() Msg {
		done <- k.SemWaitTimeout(&sem, TimeInfinite)
		return MsgOK
	})
	stop := runExternal(t, k)
	k.RaiseIRQ(line)

	select {
	case msg := <-done:
		if msg != MsgOK {
			t.Fatalf("expected MsgOK, got %s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt never woke the waiter")
	}
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExternalTicksWakeSleeper(t *testing.T) {
	k, err := New(Config{Checks: true})
	require.NoError(t, err)

	done := make(chan uint64, 1)
	spawn(t, k, NormalPriority, "sleeper", func() Msg {
		start := k.Now()
		k.Sleep(5)
		done <- k.Now() - start
		return MsgOK
	})
	stop := runExternal(t, k)

	var elapsed uint64
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(5 * time.Second)
wait:
	for {
		select {
		case elapsed = <-done:
			break wait
		case <-ticker.C:
			k.Tick()
		case <-deadline:
			t.Fatal("sleeper never woke")
		}
	}
	if elapsed < 5 {
		t.Fatalf("expected at least 5 ticks of sleep, got %d", elapsed)
	}
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestISRWakesHigherPriorityAtEpilogue(t *testing.T) {
	k, err := New(Config{Checks: true})
	require.NoError(t, err)

	var src EventSource
	const line IRQ = 9
	k.AttachIRQ(line, func(l Locked) { l.BroadcastFlags(&src, 1) })

	order := make(chan string, 4)
	registered := make(chan struct{})
	spawn(t, k, 20, "high", func() Msg {
		_, _ = k.RegisterID(&src, 0)
		close(registered)
		k.WaitAny(EventBit(0))
		order <- "high"
		return MsgOK
	})
	spawn(t, k, 10, "low", func() Msg {
		<-registered
		k.RaiseIRQ(line)
		// the interrupt is taken at the next kernel entry
		k.Poll()
		order <- "low"
		return MsgOK
	})
	stop := runExternal(t, k)

	first := <-order
	second := <-order
	if first != "high" || second != "low" {
		t.Fatalf("expected high before low, got %s then %s", first, second)
	}
	_ = stop()
}
