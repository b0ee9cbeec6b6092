package kernel

import "fmt"

// HaltInfo describes why the kernel halted.
type HaltInfo struct {
	Reason string
	Thread string
	Value  any
	Stack  []byte
}

// HaltError is returned by Run after a fatal error. The kernel cannot be
// restarted.
type HaltError struct {
	Info HaltInfo
}

func (e *HaltError) Error() string {
	if e.Info.Thread == "" {
		return "kernel halted: " + e.Info.Reason
	}
	return fmt.Sprintf("kernel halted in thread %q: %s", e.Info.Thread, e.Info.Reason)
}

// Halted reports whether the kernel has stopped, by halting or otherwise.
func (k *Kernel) Halted() bool {
	select {
	case <-k.dead:
		return true
	default:
		return false
	}
}

// Halt stops the system from thread or interrupt context. It does not
// return.
func (l Locked) Halt(reason string) {
	l.k.fatal(reason)
}

func (k *Kernel) fatalf(format string, args ...any) {
	k.fatal(fmt.Sprintf(format, args...))
}

// fatal halts the kernel and unwinds the calling thread. Before Run there is
// no thread to unwind, so the caller panics with the halt error instead.
func (k *Kernel) fatal(reason string) {
	info := HaltInfo{Reason: reason, Stack: captureStack()}
	if k.running() {
		info.Thread = k.threads[k.cur].name
	}
	herr := k.halt(info)
	if !k.running() {
		panic(herr)
	}
	panic(unwind{})
}

// halt records info as the cause of death, at most once, and wakes every
// parked goroutine.
func (k *Kernel) halt(info HaltInfo) *HaltError {
	herr := &HaltError{Info: info}
	first := false
	k.deadOnce.Do(func() {
		first = true
		k.haltErr = herr
		close(k.dead)
	})
	if !first {
		return herr
	}
	k.log.Crit().
		Str("reason", info.Reason).
		Str("thread", info.Thread).
		Uint64("now", k.now).
		Log("kernel halted")
	if k.cfg.OnHalt != nil {
		k.cfg.OnHalt(info)
	}
	return herr
}
