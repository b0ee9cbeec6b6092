package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Tick is an interval measured in system ticks.
type Tick uint32

const (
	// TimeImmediate makes a timed wait return at once if it cannot be satisfied.
	TimeImmediate Tick = 0
	// TimeInfinite makes a timed wait block without a deadline.
	TimeInfinite Tick = ^Tick(0)
)

// Clock selects where system ticks come from.
type Clock uint8

const (
	// ClockExternal advances time only when ticks are delivered through Tick.
	ClockExternal Clock = iota
	// ClockVirtual jumps time forward to the next timer expiry whenever the
	// system is idle. Run returns once nothing is ready and nothing is armed.
	ClockVirtual
)

func (c Clock) String() string {
	switch c {
	case ClockExternal:
		return "external"
	case ClockVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

const (
	defaultMaxThreads   = 16
	defaultMaxTimers    = 16
	defaultMaxListeners = 32
	defaultTickHz       = 1000

	maxThreadSlots = 254
	maxTimerSlots  = 4096
)

// Config controls kernel sizing and behaviour.
//
// Zero values select the defaults.
type Config struct {
	// MaxThreads is the number of thread slots (not counting idle).
	MaxThreads int
	// MaxTimers is the number of user virtual timers handed out by NewTimer.
	MaxTimers int
	// MaxListeners is the number of event listener records.
	MaxListeners int
	// TickHz is the system tick frequency, used for duration conversions.
	TickHz uint32
	// Clock selects the time base.
	Clock Clock
	// Checks enables contract checks (gate discipline, handle validity,
	// stack guards). Violations halt the kernel. Forced on by the debug tag.
	Checks bool
	// Logger receives kernel diagnostics. Nil disables logging.
	Logger *logiface.Logger[logiface.Event]
	// OnHalt is invoked once when the kernel halts on a fatal error.
	OnHalt func(HaltInfo)
}

var (
	// ErrBadConfig is returned by New for out-of-range Config fields.
	ErrBadConfig = errors.New("kernel: bad config")
	// ErrNoSlots means every thread slot holds a live or unjoined thread.
	ErrNoSlots = errors.New("kernel: no free thread slot")
	// ErrNoTimers means NewTimer has handed out every user timer.
	ErrNoTimers = errors.New("kernel: no free virtual timer")
	// ErrNoListeners means the listener table is full.
	ErrNoListeners = errors.New("kernel: no free event listener")
	// ErrStalled is returned by Run on the virtual clock when threads are
	// blocked and nothing can wake them.
	ErrStalled = errors.New("kernel: stalled with blocked threads")
	// ErrRunning is returned by Run on a kernel that was already started.
	ErrRunning = errors.New("kernel: already started")
)

const (
	phaseInit uint32 = iota
	phaseRunning
	phaseDead
)

// Kernel is the complete scheduler state: thread table, ready queue, timer
// delta queue and listener table, plus the gate that guards them.
type Kernel struct {
	cfg Config
	log *logiface.Logger[logiface.Event]

	threads []Thread
	idle    int16
	cur     int16
	ready   threadQueue

	vt       []vtimer
	vtUser   int
	vtNext   int
	now      uint64
	tickStep time.Duration

	listeners []listener
	freeL     ListenerID

	locked      bool
	epoch       uint32
	epochSeq    uint32
	isr         int
	needResched bool

	irqs    [MaxIRQ]ISRFunc
	pending atomic.Uint32
	ticks   atomic.Uint32
	wake    chan struct{}

	phase    atomic.Uint32
	stop     <-chan struct{}
	dead     chan struct{}
	deadOnce sync.Once
	haltErr  *HaltError
	wg       sync.WaitGroup
}

// New validates cfg and preallocates every kernel table.
func New(cfg Config) (*Kernel, error) {
	if cfg.MaxThreads == 0 {
		cfg.MaxThreads = defaultMaxThreads
	}
	if cfg.MaxTimers == 0 {
		cfg.MaxTimers = defaultMaxTimers
	}
	if cfg.MaxListeners == 0 {
		cfg.MaxListeners = defaultMaxListeners
	}
	if cfg.TickHz == 0 {
		cfg.TickHz = defaultTickHz
	}
	if forceChecks {
		cfg.Checks = true
	}
	switch {
	case cfg.MaxThreads < 0 || cfg.MaxThreads > maxThreadSlots:
		return nil, fmt.Errorf("%w: max threads %d out of range [1, %d]", ErrBadConfig, cfg.MaxThreads, maxThreadSlots)
	case cfg.MaxTimers < 0 || cfg.MaxTimers > maxTimerSlots:
		return nil, fmt.Errorf("%w: max timers %d out of range [1, %d]", ErrBadConfig, cfg.MaxTimers, maxTimerSlots)
	case cfg.MaxListeners < 0 || cfg.MaxListeners > 0xFFFE:
		return nil, fmt.Errorf("%w: max listeners %d out of range", ErrBadConfig, cfg.MaxListeners)
	case cfg.Clock != ClockExternal && cfg.Clock != ClockVirtual:
		return nil, fmt.Errorf("%w: unknown clock %d", ErrBadConfig, cfg.Clock)
	}

	k := &Kernel{
		cfg:      cfg,
		log:      cfg.Logger,
		threads:  make([]Thread, cfg.MaxThreads+1),
		idle:     int16(cfg.MaxThreads),
		tickStep: time.Second / time.Duration(cfg.TickHz),
		wake:     make(chan struct{}, 1),
		dead:     make(chan struct{}),
	}
	for i := range k.threads {
		t := &k.threads[i]
		t.next, t.prev = nilSlot, nilSlot
		t.resume = make(chan struct{}, 1)
	}
	idle := &k.threads[k.idle]
	idle.used = true
	idle.gen = 1
	idle.name = "idle"
	idle.prio = IdlePriority
	idle.state = ThreadRunning
	k.cur = k.idle

	k.initTimers(cfg.MaxThreads+1, cfg.MaxTimers)
	k.initListeners(cfg.MaxListeners)
	return k, nil
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Ticks converts a duration to system ticks, rounding up.
func (k *Kernel) Ticks(d time.Duration) Tick {
	if d <= 0 {
		return TimeImmediate
	}
	n := (d + k.tickStep - 1) / k.tickStep
	if n >= time.Duration(TimeInfinite) {
		return TimeInfinite - 1
	}
	return Tick(n)
}

// Duration converts ticks to wall time.
func (k *Kernel) Duration(t Tick) time.Duration {
	return time.Duration(t) * k.tickStep
}

func (k *Kernel) running() bool { return k.phase.Load() == phaseRunning }

// Run makes the calling goroutine the idle thread and runs the system.
//
// It returns ctx.Err() when ctx is done, nil when a virtual-clock system
// completes with every thread finished, ErrStalled when a virtual-clock
// system goes quiescent with blocked threads, or a *HaltError if the kernel
// halted. Every thread goroutine has exited when Run returns.
func (k *Kernel) Run(ctx context.Context) (err error) {
	if !k.phase.CompareAndSwap(phaseInit, phaseRunning) {
		return ErrRunning
	}
	k.stop = ctx.Done()
	k.log.Info().
		Str("clock", k.cfg.Clock.String()).
		Int("threads", k.countThreads()).
		Log("kernel started")

	defer func() {
		err = k.teardown(err)
	}()
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(unwind); !ok {
				panic(r)
			}
			err = ctx.Err()
		}
	}()

	k.lock()
	for {
		k.unlockS()
		done, err := k.idleWait(ctx)
		if done {
			return err
		}
		k.lock()
	}
}

// idleWait blocks the idle thread until there is something to do.
func (k *Kernel) idleWait(ctx context.Context) (bool, error) {
	for {
		if k.irqPending() {
			return false, nil
		}
		if k.cfg.Clock == ClockVirtual {
			k.lock()
			h := k.vt[0].next
			if h != 0 {
				k.interruptI(func(Locked) { k.advanceI(uint64(k.vt[h].delta)) })
			}
			k.locked = false
			if h == 0 {
				return true, k.quiescent()
			}
			return false, nil
		}
		select {
		case <-k.wake:
		case <-ctx.Done():
			return true, ctx.Err()
		case <-k.dead:
			return true, nil
		}
	}
}

func (k *Kernel) quiescent() error {
	blocked := 0
	for i := range k.threads[:k.idle] {
		t := &k.threads[i]
		if t.used && t.state != ThreadFinal {
			blocked++
		}
	}
	if blocked == 0 {
		k.log.Info().Uint64("now", k.now).Log("kernel finished")
		return nil
	}
	k.log.Warning().Uint64("now", k.now).Int("blocked", blocked).Log("kernel stalled")
	return fmt.Errorf("%w: %d thread(s) blocked at tick %d", ErrStalled, blocked, k.now)
}

func (k *Kernel) teardown(err error) error {
	k.kill(nil)
	k.wg.Wait()
	k.phase.Store(phaseDead)
	if k.haltErr != nil {
		return k.haltErr
	}
	return err
}

// kill closes the dead channel once, recording herr if it is the first cause.
func (k *Kernel) kill(herr *HaltError) {
	k.deadOnce.Do(func() {
		k.haltErr = herr
		close(k.dead)
	})
}

func (k *Kernel) countThreads() int {
	n := 0
	for i := range k.threads[:k.idle] {
		if k.threads[i].used {
			n++
		}
	}
	return n
}
