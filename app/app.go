// Package app composes the kernel, the HAL and the drivers into a running
// system and hosts the demo threads.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"

	"tickos/drivers/buzzer"
	"tickos/drivers/can"
	"tickos/drivers/spi"
	"tickos/hal"
	"tickos/internal/buildinfo"
	"tickos/kernel"
)

// Interrupt lines used by the drivers.
const (
	irqSPI kernel.IRQ = 1 + iota
	irqCANTx
	irqCANRx
	irqCANError
	irqCANWakeup
)

// Config selects the demos and the kernel time base.
type Config struct {
	SPI    bool
	Buzzer bool
	CAN    bool

	// Rounds bounds every demo loop. Zero loops forever.
	Rounds int
	// Virtual runs on the virtual clock instead of the HAL tick stream.
	Virtual bool
	// TickHz is the kernel tick rate; it must match the HAL tick stream.
	TickHz uint32
	Checks bool
	Log    *logiface.Logger[logiface.Event]
}

// System is a configured kernel with its drivers and demo threads.
type System struct {
	h   hal.HAL
	k   *kernel.Kernel
	cfg Config
	log *logiface.Logger[logiface.Event]

	spi    *spi.Driver
	buzzer *buzzer.Driver
	can    *can.Driver
}

// New builds the kernel, binds the drivers and creates the demo threads.
func New(h hal.HAL, cfg Config) (*System, error) {
	bootStep(h, "kernel")
	clock := kernel.ClockExternal
	if cfg.Virtual {
		clock = kernel.ClockVirtual
	}
	k, err := kernel.New(kernel.Config{
		TickHz: cfg.TickHz,
		Clock:  clock,
		Checks: cfg.Checks,
		Logger: cfg.Log,
		OnHalt: haltHandler(h),
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	s := &System{h: h, k: k, cfg: cfg, log: cfg.Log}

	bootStep(h, "drivers")
	if cfg.SPI {
		s.spi = spi.New(k, h.SPI(), irqSPI)
	}
	if cfg.Buzzer {
		if s.buzzer, err = buzzer.New(k, h.Tone(), cfg.Log); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	if cfg.CAN {
		s.can = can.New(k, h.CAN(), can.Lines{
			Tx:     irqCANTx,
			Rx:     irqCANRx,
			Error:  irqCANError,
			Wakeup: irqCANWakeup,
		}, cfg.Log)
		if err := s.can.Start(hal.CANConfig{Bitrate: 500_000, Loopback: true}); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	bootStep(h, "threads")
	if err := s.spawnDemos(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return s, nil
}

// Kernel returns the system kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Run runs the kernel until ctx ends, the kernel halts, or a virtual-clock
// system finishes. On the external clock the HAL tick stream drives the
// kernel tick.
func (s *System) Run(ctx context.Context) error {
	bi := buildinfo.Read()
	s.log.Info().
		Str("version", bi.Short()).
		Str("built", bi.Date).
		Str("clock", s.k.Config().Clock.String()).
		Uint64("hz", uint64(s.k.Config().TickHz)).
		Log("tickos boot")
	bootStep(s.h, "run")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.k.Run(ctx)
	})
	if !s.cfg.Virtual {
		ticks := s.h.Time().Ticks()
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticks:
					s.k.Tick()
				}
			}
		})
	}
	return g.Wait()
}

// ticks converts d to kernel ticks.
func (s *System) ticks(d time.Duration) kernel.Tick {
	return s.k.Ticks(d)
}
