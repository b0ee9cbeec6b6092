// Package selftest is a kernel conformance sequence that runs on the
// virtual clock, usable from tests and from the ksim tool.
package selftest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joeycumines/logiface"

	"tickos/kernel"
)

// T collects the failures of one case. Its methods are called from kernel
// threads, which all run on a single CPU, so T needs no locking.
type T struct {
	k      *kernel.Kernel
	tokens []byte
	fails  []string
}

// Errorf records a failure.
func (t *T) Errorf(format string, args ...any) {
	t.fails = append(t.fails, fmt.Sprintf(format, args...))
}

// Assert records a failure unless cond holds.
func (t *T) Assert(cond bool, format string, args ...any) {
	if !cond {
		t.Errorf(format, args...)
	}
}

// Emit appends a token to the case's sequence.
func (t *T) Emit(c byte) { t.tokens = append(t.tokens, c) }

// Sequence checks and clears the emitted tokens.
func (t *T) Sequence(want string) {
	if got := string(t.tokens); got != want {
		t.Errorf("sequence: expected %q, got %q", want, got)
	}
	t.tokens = t.tokens[:0]
}

// Spawn creates a thread running fn.
func (t *T) Spawn(prio kernel.Priority, name string, fn func()) kernel.ThreadID {
	id, err := t.k.CreateThread(kernel.NewWorkingArea(make([]byte, 128)), prio, name,
		func(any) kernel.Msg { fn(); return kernel.MsgOK }, nil)
	if err != nil {
		t.Errorf("create %s: %v", name, err)
	}
	return id
}

// Case is one named check. Setup runs before the kernel starts and creates
// the threads that perform the check.
type Case struct {
	Name  string
	Setup func(k *kernel.Kernel, t *T)
}

// Result is the outcome of one case.
type Result struct {
	Name     string
	Failures []string
	// Ticks is the virtual time the case took.
	Ticks   uint64
	Elapsed time.Duration
}

// Passed reports whether the case had no failures.
func (r Result) Passed() bool { return len(r.Failures) == 0 }

func (r Result) String() string {
	if r.Passed() {
		return fmt.Sprintf("PASS %s (%d ticks)", r.Name, r.Ticks)
	}
	return fmt.Sprintf("FAIL %s: %s", r.Name, strings.Join(r.Failures, "; "))
}

// Options controls Run.
type Options struct {
	// Filter selects cases by name. Nil runs all.
	Filter *regexp.Regexp
	Log    *logiface.Logger[logiface.Event]
}

// Run executes the cases in order, each on a fresh kernel.
func Run(ctx context.Context, cases []Case, opts Options) []Result {
	var results []Result
	for _, c := range cases {
		if opts.Filter != nil && !opts.Filter.MatchString(c.Name) {
			continue
		}
		results = append(results, runCase(ctx, c, opts.Log))
	}
	return results
}

func runCase(ctx context.Context, c Case, log *logiface.Logger[logiface.Event]) Result {
	res := Result{Name: c.Name}
	k, err := kernel.New(kernel.Config{Clock: kernel.ClockVirtual, Checks: true, Logger: log})
	if err != nil {
		res.Failures = []string{err.Error()}
		return res
	}
	t := &T{k: k}
	c.Setup(k, t)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	runErr := k.Run(ctx)
	res.Elapsed = time.Since(start)
	res.Ticks = k.Now()
	res.Failures = t.fails
	if runErr != nil {
		res.Failures = append(res.Failures, fmt.Sprintf("run: %v", runErr))
	}
	return res
}
