//go:build !tinygo

package hal

import "time"

// hostTime turns wall-clock steps into a stream of fixed-period ticks.
type hostTime struct {
	ch     chan uint64
	seq    uint64
	period time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime(period time.Duration) *hostTime {
	if period <= 0 {
		period = time.Millisecond
	}
	return &hostTime{ch: make(chan uint64, 1024), period: period}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// step emits one tick per whole period elapsed since the previous step and
// reports how many it emitted. The first step emits exactly one.
func (t *hostTime) step(now time.Time) uint64 {
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(1)
		return 1
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.period)
	if ticks == 0 {
		return 0
	}
	t.acc = t.acc % t.period
	t.stepN(ticks)
	return ticks
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
